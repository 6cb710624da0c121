package timer

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftclock/go/internal/draft/events"
	"github.com/mcdev12/draftclock/go/internal/httputil"
)

// StateReader is what the HTTP service needs from the authority.
type StateReader interface {
	ReconciledState(ctx context.Context, draftID uuid.UUID) (State, error)
	Clock() clockwork.Clock
}

// StateResponse is the body of GET /api/drafts/{draftID}/timer.
type StateResponse struct {
	DraftID          string                    `json:"draft_id"`
	State            string                    `json:"state"`
	SecondsRemaining float64                   `json:"seconds_remaining"`
	OriginalDuration int                       `json:"original_duration"`
	PickID           *string                   `json:"pick_id"`
	ServerTime       time.Time                 `json:"server_time"`
	Anchor           *events.TimerEventPayload `json:"anchor,omitempty"`
}

// NewStateResponse converts a derived state for the wire.
func NewStateResponse(st State, serverTime time.Time) StateResponse {
	resp := StateResponse{
		DraftID:          st.DraftID.String(),
		State:            string(st.Status),
		SecondsRemaining: st.SecondsRemaining,
		OriginalDuration: st.OriginalDuration,
		ServerTime:       serverTime,
	}
	if st.PickID != nil {
		s := st.PickID.String()
		resp.PickID = &s
	}
	if st.Anchor != nil {
		p := events.NewTimerEventPayload(*st.Anchor)
		resp.Anchor = &p
	}
	return resp
}

// Service serves the read side of the draft clock over HTTP.
type Service struct {
	states StateReader
}

func NewService(states StateReader) *Service {
	return &Service{states: states}
}

// RegisterRoutes registers the timer routes on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/drafts/{draftID}/timer", s.HandleGetTimerState)
}

// HandleGetTimerState handles GET /api/drafts/{draftID}/timer
func (s *Service) HandleGetTimerState(w http.ResponseWriter, r *http.Request) {
	draftID, err := httputil.PathUUID(r, "draftID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	st, err := s.states.ReconciledState(r.Context(), draftID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, NewStateResponse(st, s.states.Clock().Now()))
}
