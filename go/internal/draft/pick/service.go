package pick

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/auth"
	"github.com/mcdev12/draftclock/go/internal/httputil"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// PickApp defines what the service layer needs from the pick application
type PickApp interface {
	SubmitPick(ctx context.Context, u auth.User, req SubmitPickRequest) (*models.DraftPick, error)
	DeletePick(ctx context.Context, u auth.User, draftID, pickID uuid.UUID) (*VacateOutcome, error)
	SetKeeperStatus(ctx context.Context, u auth.User, req KeeperRequest) (*models.DraftPick, error)
	StartTimer(ctx context.Context, u auth.User, req StartTimerRequest) (*models.TimerEvent, error)
	PauseTimer(ctx context.Context, u auth.User, draftID uuid.UUID) (*models.TimerEvent, error)
	ResumeTimer(ctx context.Context, u auth.User, draftID uuid.UUID) (*models.TimerEvent, error)
	ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error)
	AvailablePlayers(ctx context.Context, draftID uuid.UUID, limit int) ([]models.Player, error)
}

// PickResponse wraps a single pick.
type PickResponse struct {
	Pick models.DraftPick `json:"pick"`
}

type submitPickBody struct {
	PlayerID uuid.UUID `json:"player_id"`
	Override bool      `json:"override"`
}

type keeperBody struct {
	IsKeeper bool       `json:"is_keeper"`
	PlayerID *uuid.UUID `json:"player_id"`
}

type startTimerBody struct {
	Seconds  int        `json:"seconds"`
	PickID   *uuid.UUID `json:"pick_id"`
	Override bool       `json:"override"`
}

// Service serves the pick and timer-control routes.
type Service struct {
	app PickApp
}

func NewService(app PickApp) *Service {
	return &Service{app: app}
}

// RegisterRoutes registers the pick routes on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/drafts/{draftID}/timer/start", s.HandleStartTimer)
	mux.HandleFunc("POST /api/drafts/{draftID}/timer/pause", s.HandlePauseTimer)
	mux.HandleFunc("POST /api/drafts/{draftID}/timer/resume", s.HandleResumeTimer)
	mux.HandleFunc("GET /api/drafts/{draftID}/picks", s.HandleListPicks)
	mux.HandleFunc("POST /api/drafts/{draftID}/picks/{pickID}", s.HandleSubmitPick)
	mux.HandleFunc("DELETE /api/drafts/{draftID}/picks/{pickID}", s.HandleDeletePick)
	mux.HandleFunc("PUT /api/drafts/{draftID}/picks/{pickID}/keeper", s.HandleSetKeeper)
	mux.HandleFunc("GET /api/drafts/{draftID}/players/available", s.HandleAvailablePlayers)
}

// HandleStartTimer handles POST /api/drafts/{draftID}/timer/start
func (s *Service) HandleStartTimer(w http.ResponseWriter, r *http.Request) {
	u, draftID, ok := callerAndDraft(w, r)
	if !ok {
		return
	}
	var body startTimerBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if body.Seconds < 0 {
		httputil.WriteError(w, models.ErrInvalidArgument)
		return
	}

	_, err := s.app.StartTimer(r.Context(), u, StartTimerRequest{
		DraftID:  draftID,
		Seconds:  body.Seconds,
		PickID:   body.PickID,
		Override: body.Override,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePauseTimer handles POST /api/drafts/{draftID}/timer/pause
func (s *Service) HandlePauseTimer(w http.ResponseWriter, r *http.Request) {
	u, draftID, ok := callerAndDraft(w, r)
	if !ok {
		return
	}
	if _, err := s.app.PauseTimer(r.Context(), u, draftID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResumeTimer handles POST /api/drafts/{draftID}/timer/resume
func (s *Service) HandleResumeTimer(w http.ResponseWriter, r *http.Request) {
	u, draftID, ok := callerAndDraft(w, r)
	if !ok {
		return
	}
	if _, err := s.app.ResumeTimer(r.Context(), u, draftID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSubmitPick handles POST /api/drafts/{draftID}/picks/{pickID}
func (s *Service) HandleSubmitPick(w http.ResponseWriter, r *http.Request) {
	u, draftID, ok := callerAndDraft(w, r)
	if !ok {
		return
	}
	pickID, err := httputil.PathUUID(r, "pickID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body submitPickBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := s.app.SubmitPick(r.Context(), u, SubmitPickRequest{
		DraftID:  draftID,
		PickID:   pickID,
		PlayerID: body.PlayerID,
		Override: body.Override,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PickResponse{Pick: *p})
}

// HandleDeletePick handles DELETE /api/drafts/{draftID}/picks/{pickID}
func (s *Service) HandleDeletePick(w http.ResponseWriter, r *http.Request) {
	u, draftID, ok := callerAndDraft(w, r)
	if !ok {
		return
	}
	pickID, err := httputil.PathUUID(r, "pickID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := s.app.DeletePick(r.Context(), u, draftID, pickID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleSetKeeper handles PUT /api/drafts/{draftID}/picks/{pickID}/keeper
func (s *Service) HandleSetKeeper(w http.ResponseWriter, r *http.Request) {
	u, draftID, ok := callerAndDraft(w, r)
	if !ok {
		return
	}
	pickID, err := httputil.PathUUID(r, "pickID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body keeperBody
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := s.app.SetKeeperStatus(r.Context(), u, KeeperRequest{
		DraftID:  draftID,
		PickID:   pickID,
		IsKeeper: body.IsKeeper,
		PlayerID: body.PlayerID,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PickResponse{Pick: *p})
}

// HandleListPicks handles GET /api/drafts/{draftID}/picks
func (s *Service) HandleListPicks(w http.ResponseWriter, r *http.Request) {
	draftID, err := httputil.PathUUID(r, "draftID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	picks, err := s.app.ListPicks(r.Context(), draftID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"picks": picks})
}

// HandleAvailablePlayers handles GET /api/drafts/{draftID}/players/available?limit=
func (s *Service) HandleAvailablePlayers(w http.ResponseWriter, r *http.Request) {
	draftID, err := httputil.PathUUID(r, "draftID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			httputil.WriteError(w, models.ErrInvalidArgument)
			return
		}
	}

	players, err := s.app.AvailablePlayers(r.Context(), draftID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"players": players})
}

func callerAndDraft(w http.ResponseWriter, r *http.Request) (auth.User, uuid.UUID, bool) {
	u, err := auth.UserFromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return auth.User{}, uuid.Nil, false
	}
	draftID, err := httputil.PathUUID(r, "draftID")
	if err != nil {
		httputil.WriteError(w, err)
		return auth.User{}, uuid.Nil, false
	}
	return u, draftID, true
}
