package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// arm sets a one-shot timer for a draft's generation. An older generation than the
// one already armed is ignored, as is a repeat of the same generation and deadline.
func (o *Orchestrator) arm(draftID uuid.UUID, sequence int64, fireAt time.Time) {
	o.activeTimersMu.Lock()
	if cur, ok := o.activeTimers[draftID]; ok {
		if cur.sequence > sequence || (cur.sequence == sequence && cur.fireAt.Equal(fireAt)) {
			o.activeTimersMu.Unlock()
			log.Debug().
				Str("draft_id", draftID.String()).
				Int64("sequence", sequence).
				Int64("armed_sequence", cur.sequence).
				Msg("skipping schedule - newer or identical generation already armed")
			return
		}
	}

	duration := fireAt.Sub(o.clock.Now())
	if duration < 0 {
		duration = 0
	}
	at := &armedTimer{
		sequence: sequence,
		fireAt:   fireAt,
		timer:    o.clock.NewTimer(duration),
		cancel:   make(chan struct{}),
	}
	o.replaceTimerLocked(draftID, at)
	o.activeTimersMu.Unlock()

	go o.waitTimer(draftID, at)

	log.Debug().
		Str("draft_id", draftID.String()).
		Int64("sequence", sequence).
		Time("deadline", fireAt).
		Dur("duration", duration).
		Msg("scheduled one-shot timer")
}

func (o *Orchestrator) waitTimer(draftID uuid.UUID, at *armedTimer) {
	select {
	case <-at.timer.Chan():
		o.removeTimer(draftID, at)
		log.Debug().Str("draft_id", draftID.String()).Int64("sequence", at.sequence).Msg("timer fired")
		o.enqueue(work{draftID: draftID, sequence: at.sequence})
	case <-at.cancel:
		stopAndDrainTimer(at.timer)
	case <-o.done:
		stopAndDrainTimer(at.timer)
	}
}

// replaceTimerLocked swaps in a new timer for a draft and releases the old one's
// goroutine. Caller holds activeTimersMu.
func (o *Orchestrator) replaceTimerLocked(draftID uuid.UUID, at *armedTimer) {
	if existing, ok := o.activeTimers[draftID]; ok {
		close(existing.cancel)
		log.Debug().Str("draft_id", draftID.String()).Int64("sequence", existing.sequence).Msg("replaced existing timer")
	}
	o.activeTimers[draftID] = at
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// cancelTimer drops the draft's timer if it belongs to a generation before sequence.
func (o *Orchestrator) cancelTimer(draftID uuid.UUID, sequence int64) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if existing, ok := o.activeTimers[draftID]; ok && existing.sequence < sequence {
		close(existing.cancel)
		delete(o.activeTimers, draftID)
		log.Debug().Str("draft_id", draftID.String()).Int64("sequence", existing.sequence).Msg("cancelled timer")
	}
}

// removeTimer forgets a fired timer unless it was already replaced.
func (o *Orchestrator) removeTimer(draftID uuid.UUID, at *armedTimer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if o.activeTimers[draftID] == at {
		delete(o.activeTimers, draftID)
	}
}

// cancelAllTimers stops every armed timer. Used on shutdown.
func (o *Orchestrator) cancelAllTimers() {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	for draftID, at := range o.activeTimers {
		close(at.cancel)
		delete(o.activeTimers, draftID)
	}
}

// enqueue hands a generation to the worker pool unless it is already being handled.
func (o *Orchestrator) enqueue(w work) {
	o.inFlightMu.Lock()
	if o.inFlight[w] {
		o.inFlightMu.Unlock()
		log.Debug().Str("draft_id", w.draftID.String()).Int64("sequence", w.sequence).Msg("generation already in flight")
		return
	}
	o.inFlight[w] = true
	o.inFlightMu.Unlock()

	select {
	case o.workCh <- w:
	case <-o.done:
		o.finish(w)
	}
}

func (o *Orchestrator) finish(w work) {
	o.inFlightMu.Lock()
	delete(o.inFlight, w)
	o.inFlightMu.Unlock()
}
