package models

import (
	"errors"
	"fmt"
)

// Error kinds. Transport layers map these, and only these, to status codes.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrConflict            = errors.New("conflict")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNotFound            = errors.New("not found")
	ErrInvalidArgument     = errors.New("invalid argument")
)

var (
	// Pick errors
	ErrPickAlreadyMade      = fmt.Errorf("%w: pick already made", ErrConflict)
	ErrPlayerAlreadyDrafted = fmt.Errorf("%w: player already drafted in this draft", ErrConflict)
	ErrNotCurrentPick       = fmt.Errorf("%w: pick is not on the clock", ErrConflict)
	ErrDraftNotInProgress   = fmt.Errorf("%w: draft is not in progress", ErrConflict)
	ErrPickNotMade          = fmt.Errorf("%w: pick has not been made", ErrInvalidTransition)
	ErrPickNotFound         = fmt.Errorf("%w: pick", ErrNotFound)
	ErrDraftNotFound        = fmt.Errorf("%w: draft", ErrNotFound)

	// Timer errors
	ErrTimerRunning    = fmt.Errorf("%w: timer already running", ErrConflict)
	ErrTimerNotRunning = fmt.Errorf("%w: timer is not running", ErrInvalidTransition)
	ErrTimerNotPaused  = fmt.Errorf("%w: timer is not paused", ErrInvalidTransition)

	// Permission errors
	ErrNotCommissioner = fmt.Errorf("%w: commissioner only", ErrUnauthorized)
	ErrNotTeamOwner    = fmt.Errorf("%w: not the owner of the team on the clock", ErrUnauthorized)
)
