package viewer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftclock/go/internal/draft/gateway"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Sink receives what the subscriber reads. *Presenter implements it.
type Sink interface {
	Ingest(ev models.TimerEvent) bool
	TransportUp()
	TransportDown()
}

// SubscriberConfig configures the gateway connection.
type SubscriberConfig struct {
	GatewayURL string // e.g. ws://localhost:8081
	UserID     string
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
}

func DefaultSubscriberConfig(gatewayURL string) SubscriberConfig {
	return SubscriberConfig{
		GatewayURL: gatewayURL,
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 10 * time.Second,
		Dialer:     websocket.DefaultDialer,
	}
}

// Subscriber streams a draft's clock frames from the gateway into a Sink and
// reconnects with exponential backoff.
type Subscriber struct {
	draftID uuid.UUID
	sink    Sink
	cfg     SubscriberConfig
	clock   clockwork.Clock
}

func NewSubscriber(draftID uuid.UUID, sink Sink, cfg SubscriberConfig, clock clockwork.Clock) *Subscriber {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Subscriber{draftID: draftID, sink: sink, cfg: cfg, clock: clock}
}

// Run keeps a connection open until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := s.cfg.MinBackoff
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			s.sink.TransportDown()
			backoff = s.cfg.MinBackoff
		}

		log.Warn().
			Err(err).
			Str("draft_id", s.draftID.String()).
			Dur("backoff", backoff).
			Msg("gateway connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

func (s *Subscriber) endpoint() (string, error) {
	u, err := url.Parse(s.cfg.GatewayURL)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	u.Path = "/ws/draft"
	q := u.Query()
	q.Set("draft_id", s.draftID.String())
	if s.cfg.UserID != "" {
		q.Set("user_id", s.cfg.UserID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// session reads frames until the connection fails. connected reports whether the
// dial succeeded.
func (s *Subscriber) session(ctx context.Context) (bool, error) {
	endpoint, err := s.endpoint()
	if err != nil {
		return false, err
	}

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	s.sink.TransportUp()
	log.Info().Str("draft_id", s.draftID.String()).Msg("connected to gateway")

	for {
		var frame gateway.DraftEvent
		if err := conn.ReadJSON(&frame); err != nil {
			return true, fmt.Errorf("read frame: %w", err)
		}
		if !frame.Type.IsTimer() {
			continue
		}
		ev, err := frame.TimerEvent()
		if err != nil {
			log.Warn().Err(err).Str("frame_id", frame.ID).Msg("skipping malformed timer frame")
			continue
		}
		s.sink.Ingest(ev)
	}
}
