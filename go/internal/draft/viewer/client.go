package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/clients"
	"github.com/mcdev12/draftclock/go/internal/draft/rpc"
	"github.com/mcdev12/draftclock/go/internal/draft/timer"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Snapshot is one answer from the server: the clock as a sync event stamped with
// the server's time.
type Snapshot struct {
	Event      models.TimerEvent
	ServerTime time.Time
}

// Syncer fetches the authoritative clock.
type Syncer interface {
	Sync(ctx context.Context, draftID uuid.UUID) (Snapshot, error)
}

// Client syncs over the Connect clock service and falls back to the REST route
// when the server does not serve Connect.
type Client struct {
	rpc     *rpc.Client
	rest    *clients.BaseClient
	useREST atomic.Bool
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		rpc:  rpc.NewClient(httpClient, baseURL),
		rest: clients.NewBaseClient(baseURL).WithHTTPClient(httpClient),
	}
}

// Sync implements Syncer.
func (c *Client) Sync(ctx context.Context, draftID uuid.UUID) (Snapshot, error) {
	if !c.useREST.Load() {
		resp, err := c.rpc.GetTimerState(ctx, connect.NewRequest(&rpc.GetTimerStateRequest{DraftID: draftID.String()}))
		if err == nil {
			return snapshotFrom(draftID, *resp.Msg)
		}
		if !connectUnsupported(err) {
			return Snapshot{}, err
		}
		log.Info().Err(err).Str("draft_id", draftID.String()).Msg("clock service unavailable, syncing over REST")
		c.useREST.Store(true)
	}

	body, err := c.rest.Get(ctx, "/api/drafts/"+draftID.String()+"/timer")
	if err != nil {
		return Snapshot{}, err
	}
	var resp timer.StateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Snapshot{}, fmt.Errorf("decode timer state: %w", err)
	}
	return snapshotFrom(draftID, resp)
}

func connectUnsupported(err error) bool {
	code := connect.CodeOf(err)
	return code == connect.CodeUnimplemented || code == connect.CodeUnknown
}

// snapshotFrom ignores resp.DraftID, which is the nil id for a draft whose clock never started.
func snapshotFrom(draftID uuid.UUID, resp timer.StateResponse) (Snapshot, error) {
	ev := models.TimerEvent{
		DraftID:          draftID,
		EventType:        models.TimerEventSync,
		SecondsRemaining: resp.SecondsRemaining,
		OriginalDuration: resp.OriginalDuration,
		TriggeredBy:      models.TriggeredBySystem,
		CreatedAt:        resp.ServerTime,
		SyncState:        models.TimerStatus(resp.State),
	}
	if resp.PickID != nil {
		pickID, err := uuid.Parse(*resp.PickID)
		if err != nil {
			return Snapshot{}, fmt.Errorf("parse pick id: %w", err)
		}
		ev.PickID = &pickID
	}
	if resp.Anchor != nil {
		ev.Sequence = resp.Anchor.Sequence
	}
	return Snapshot{Event: ev, ServerTime: resp.ServerTime}, nil
}
