package draft

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/auth"
	"github.com/mcdev12/draftclock/go/internal/httputil"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// DraftApp defines what the service layer needs from the draft application
type DraftApp interface {
	GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	StartDraft(ctx context.Context, u auth.User, id uuid.UUID) (*models.Draft, error)
	PauseDraft(ctx context.Context, u auth.User, id uuid.UUID, reason string) (*models.Draft, error)
	ResumeDraft(ctx context.Context, u auth.User, id uuid.UUID) (*models.Draft, error)
}

// Service serves the draft lifecycle routes.
type Service struct {
	app DraftApp
}

func NewService(app DraftApp) *Service {
	return &Service{app: app}
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/drafts/{draftID}", s.HandleGetDraft)
	mux.HandleFunc("POST /api/drafts/{draftID}/start", s.HandleStartDraft)
	mux.HandleFunc("POST /api/drafts/{draftID}/pause", s.HandlePauseDraft)
	mux.HandleFunc("POST /api/drafts/{draftID}/resume", s.HandleResumeDraft)
}

// HandleGetDraft handles GET /api/drafts/{draftID}
func (s *Service) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.PathUUID(r, "draftID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := s.app.GetDraft(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DraftResponse{Draft: *d})
}

// HandleStartDraft handles POST /api/drafts/{draftID}/start
func (s *Service) HandleStartDraft(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(ctx context.Context, u auth.User, id uuid.UUID) (*models.Draft, error) {
		return s.app.StartDraft(ctx, u, id)
	})
}

// HandlePauseDraft handles POST /api/drafts/{draftID}/pause
func (s *Service) HandlePauseDraft(w http.ResponseWriter, r *http.Request) {
	var body PauseDraftRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	s.transition(w, r, func(ctx context.Context, u auth.User, id uuid.UUID) (*models.Draft, error) {
		return s.app.PauseDraft(ctx, u, id, body.Reason)
	})
}

// HandleResumeDraft handles POST /api/drafts/{draftID}/resume
func (s *Service) HandleResumeDraft(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.app.ResumeDraft)
}

func (s *Service) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, auth.User, uuid.UUID) (*models.Draft, error)) {
	u, err := auth.UserFromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := httputil.PathUUID(r, "draftID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := fn(r.Context(), u, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DraftResponse{Draft: *d})
}
