package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/auth"
	"github.com/mcdev12/draftclock/go/internal/draft/events"
	"github.com/mcdev12/draftclock/go/internal/draft/pick"
	"github.com/mcdev12/draftclock/go/internal/draft/timer"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// PickApp is the part of the progression engine the clock service exposes.
type PickApp interface {
	SubmitPick(ctx context.Context, u auth.User, req pick.SubmitPickRequest) (*models.DraftPick, error)
	StartTimer(ctx context.Context, u auth.User, req pick.StartTimerRequest) (*models.TimerEvent, error)
	PauseTimer(ctx context.Context, u auth.User, draftID uuid.UUID) (*models.TimerEvent, error)
	ResumeTimer(ctx context.Context, u auth.User, draftID uuid.UUID) (*models.TimerEvent, error)
}

// Service implements the ClockService Connect procedures. The caller is read from
// the request context, so the handler must sit behind auth.Identify.
type Service struct {
	states timer.StateReader
	picks  PickApp
}

func NewService(states timer.StateReader, picks PickApp) *Service {
	return &Service{states: states, picks: picks}
}

// NewHandler builds the HTTP handler for every ClockService procedure and returns
// the path prefix to mount it on.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetTimerStateProcedure, connect.NewUnaryHandler(GetTimerStateProcedure, svc.GetTimerState, opts...))
	mux.Handle(StartTimerProcedure, connect.NewUnaryHandler(StartTimerProcedure, svc.StartTimer, opts...))
	mux.Handle(PauseTimerProcedure, connect.NewUnaryHandler(PauseTimerProcedure, svc.PauseTimer, opts...))
	mux.Handle(ResumeTimerProcedure, connect.NewUnaryHandler(ResumeTimerProcedure, svc.ResumeTimer, opts...))
	mux.Handle(SubmitPickProcedure, connect.NewUnaryHandler(SubmitPickProcedure, svc.SubmitPick, opts...))
	return "/" + ClockServiceName + "/", mux
}

// GetTimerState returns the derived clock, reconciling an orphaned one first.
func (s *Service) GetTimerState(ctx context.Context, req *connect.Request[GetTimerStateRequest]) (*connect.Response[TimerState], error) {
	draftID, err := parseID("draft_id", req.Msg.DraftID)
	if err != nil {
		return nil, toConnectError(err)
	}

	st, err := s.states.ReconciledState(ctx, draftID)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := timer.NewStateResponse(st, s.states.Clock().Now())
	return connect.NewResponse(&resp), nil
}

func (s *Service) StartTimer(ctx context.Context, req *connect.Request[StartTimerRequest]) (*connect.Response[TimerEventResponse], error) {
	u, draftID, err := caller(ctx, req.Msg.DraftID)
	if err != nil {
		return nil, toConnectError(err)
	}

	appReq := pick.StartTimerRequest{DraftID: draftID, Seconds: req.Msg.Seconds, Override: req.Msg.Override}
	if req.Msg.PickID != nil {
		pickID, err := parseID("pick_id", *req.Msg.PickID)
		if err != nil {
			return nil, toConnectError(err)
		}
		appReq.PickID = &pickID
	}

	ev, err := s.picks.StartTimer(ctx, u, appReq)
	if err != nil {
		return nil, toConnectError(err)
	}
	return eventResponse(ev), nil
}

func (s *Service) PauseTimer(ctx context.Context, req *connect.Request[DraftTimerRequest]) (*connect.Response[TimerEventResponse], error) {
	u, draftID, err := caller(ctx, req.Msg.DraftID)
	if err != nil {
		return nil, toConnectError(err)
	}
	ev, err := s.picks.PauseTimer(ctx, u, draftID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return eventResponse(ev), nil
}

func (s *Service) ResumeTimer(ctx context.Context, req *connect.Request[DraftTimerRequest]) (*connect.Response[TimerEventResponse], error) {
	u, draftID, err := caller(ctx, req.Msg.DraftID)
	if err != nil {
		return nil, toConnectError(err)
	}
	ev, err := s.picks.ResumeTimer(ctx, u, draftID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return eventResponse(ev), nil
}

func (s *Service) SubmitPick(ctx context.Context, req *connect.Request[SubmitPickRequest]) (*connect.Response[SubmitPickResponse], error) {
	u, draftID, err := caller(ctx, req.Msg.DraftID)
	if err != nil {
		return nil, toConnectError(err)
	}
	pickID, err := parseID("pick_id", req.Msg.PickID)
	if err != nil {
		return nil, toConnectError(err)
	}
	playerID, err := parseID("player_id", req.Msg.PlayerID)
	if err != nil {
		return nil, toConnectError(err)
	}

	p, err := s.picks.SubmitPick(ctx, u, pick.SubmitPickRequest{
		DraftID:  draftID,
		PickID:   pickID,
		PlayerID: playerID,
		Override: req.Msg.Override,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SubmitPickResponse{Pick: *p}), nil
}

func caller(ctx context.Context, rawDraftID string) (auth.User, uuid.UUID, error) {
	u, err := auth.UserFromContext(ctx)
	if err != nil {
		return auth.User{}, uuid.Nil, err
	}
	draftID, err := parseID("draft_id", rawDraftID)
	return u, draftID, err
}

func parseID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidArgument, name, err)
	}
	return id, nil
}

func eventResponse(ev *models.TimerEvent) *connect.Response[TimerEventResponse] {
	return connect.NewResponse(&TimerEventResponse{Event: events.NewTimerEventPayload(*ev)})
}

func toConnectError(err error) *connect.Error {
	return connect.NewError(codeFor(err), err)
}

// codeFor maps an error kind to its Connect code.
func codeFor(err error) connect.Code {
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		return connect.CodeUnauthenticated
	case errors.Is(err, models.ErrUnauthorized):
		return connect.CodePermissionDenied
	case errors.Is(err, models.ErrInvalidArgument):
		return connect.CodeInvalidArgument
	case errors.Is(err, models.ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, models.ErrInvalidTransition):
		return connect.CodeFailedPrecondition
	case errors.Is(err, models.ErrConflict):
		return connect.CodeAborted
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}
