package rpc

import (
	"github.com/mcdev12/draftclock/go/internal/draft/events"
	"github.com/mcdev12/draftclock/go/internal/draft/timer"
	"github.com/mcdev12/draftclock/go/internal/models"
)

const (
	// ClockServiceName is the fully-qualified name of the clock service.
	ClockServiceName = "draftclock.v1.ClockService"

	GetTimerStateProcedure = "/" + ClockServiceName + "/GetTimerState"
	StartTimerProcedure    = "/" + ClockServiceName + "/StartTimer"
	PauseTimerProcedure    = "/" + ClockServiceName + "/PauseTimer"
	ResumeTimerProcedure   = "/" + ClockServiceName + "/ResumeTimer"
	SubmitPickProcedure    = "/" + ClockServiceName + "/SubmitPick"
)

type GetTimerStateRequest struct {
	DraftID string `json:"draft_id"`
}

// TimerState is the same body GET /api/drafts/{draftID}/timer returns.
type TimerState = timer.StateResponse

type StartTimerRequest struct {
	DraftID  string  `json:"draft_id"`
	Seconds  int     `json:"seconds"`
	PickID   *string `json:"pick_id,omitempty"`
	Override bool    `json:"override"`
}

type DraftTimerRequest struct {
	DraftID string `json:"draft_id"`
}

type TimerEventResponse struct {
	Event events.TimerEventPayload `json:"event"`
}

type SubmitPickRequest struct {
	DraftID  string `json:"draft_id"`
	PickID   string `json:"pick_id"`
	PlayerID string `json:"player_id"`
	Override bool   `json:"override"`
}

type SubmitPickResponse struct {
	Pick models.DraftPick `json:"pick"`
}
