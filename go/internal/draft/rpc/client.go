package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls ClockService over Connect.
type Client struct {
	getTimerState *connect.Client[GetTimerStateRequest, TimerState]
	startTimer    *connect.Client[StartTimerRequest, TimerEventResponse]
	pauseTimer    *connect.Client[DraftTimerRequest, TimerEventResponse]
	resumeTimer   *connect.Client[DraftTimerRequest, TimerEventResponse]
	submitPick    *connect.Client[SubmitPickRequest, SubmitPickResponse]
}

// NewClient builds a client for the service at baseURL, e.g. http://localhost:8080.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &Client{
		getTimerState: connect.NewClient[GetTimerStateRequest, TimerState](httpClient, baseURL+GetTimerStateProcedure, opts...),
		startTimer:    connect.NewClient[StartTimerRequest, TimerEventResponse](httpClient, baseURL+StartTimerProcedure, opts...),
		pauseTimer:    connect.NewClient[DraftTimerRequest, TimerEventResponse](httpClient, baseURL+PauseTimerProcedure, opts...),
		resumeTimer:   connect.NewClient[DraftTimerRequest, TimerEventResponse](httpClient, baseURL+ResumeTimerProcedure, opts...),
		submitPick:    connect.NewClient[SubmitPickRequest, SubmitPickResponse](httpClient, baseURL+SubmitPickProcedure, opts...),
	}
}

func (c *Client) GetTimerState(ctx context.Context, req *connect.Request[GetTimerStateRequest]) (*connect.Response[TimerState], error) {
	return c.getTimerState.CallUnary(ctx, req)
}

func (c *Client) StartTimer(ctx context.Context, req *connect.Request[StartTimerRequest]) (*connect.Response[TimerEventResponse], error) {
	return c.startTimer.CallUnary(ctx, req)
}

func (c *Client) PauseTimer(ctx context.Context, req *connect.Request[DraftTimerRequest]) (*connect.Response[TimerEventResponse], error) {
	return c.pauseTimer.CallUnary(ctx, req)
}

func (c *Client) ResumeTimer(ctx context.Context, req *connect.Request[DraftTimerRequest]) (*connect.Response[TimerEventResponse], error) {
	return c.resumeTimer.CallUnary(ctx, req)
}

func (c *Client) SubmitPick(ctx context.Context, req *connect.Request[SubmitPickRequest]) (*connect.Response[SubmitPickResponse], error) {
	return c.submitPick.CallUnary(ctx, req)
}
