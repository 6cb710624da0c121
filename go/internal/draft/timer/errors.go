package timer

import (
	"fmt"
	"time"

	"github.com/mcdev12/draftclock/go/internal/models"
)

// ErrSuperseded is returned by Expire when the armed event is no longer the latest.
var ErrSuperseded = fmt.Errorf("%w: timer generation superseded", models.ErrConflict)

// NotDueError is returned by Expire when the clock still has time left.
type NotDueError struct {
	Remaining time.Duration
}

func (e *NotDueError) Error() string {
	return fmt.Sprintf("timer not due, %s remaining", e.Remaining)
}
