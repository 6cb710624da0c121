package orchestrator

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ServeHTTP reports scheduler health. It is unhealthy until Run has started and
// after it returns.
func (o *Orchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats := o.Stats()

	response := map[string]interface{}{
		"healthy":   stats.Running,
		"instance":  o.instanceID,
		"armed":     stats.Armed,
		"fired":     stats.Fired,
		"last_fire": stats.LastFire,
	}
	if o.nc != nil {
		response["nats_connected"] = o.nc.IsConnected()
	}

	w.Header().Set("Content-Type", "application/json")
	if !stats.Running {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to encode health response")
	}
}
