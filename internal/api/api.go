// Package api holds the JSON contract of the tutor endpoints. Both the HTTP
// server and the Lambda handler translate their transport into these calls.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"k12-tutor/internal/domain"
	"k12-tutor/internal/platform/logger"
	"k12-tutor/internal/usecase"
)

const (
	MsgMessageRequired = "Message is required"
	MsgMessageTooLong  = "Message is too long"
	MsgGenerateFailed  = "Failed to generate a response from the AI model."
	MsgHistoryFailed   = "Failed to load conversation history."
)

type ChatService interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	History(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error)
}

type ChatRequest struct {
	Message    string `json:"message"`
	GradeLevel string `json:"gradeLevel,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
}

type ChatResponse struct {
	Response   string `json:"response"`
	GradeLevel string `json:"gradeLevel"`
	Timestamp  string `json:"timestamp"`
	SessionID  string `json:"sessionId"`
}

type FilteredResponse struct {
	Response   string `json:"response"`
	IsFiltered bool   `json:"isFiltered"`
}

type HistoryResponse struct {
	History []domain.ConversationTurn `json:"history"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Result is a status code plus a JSON-serialisable body.
type Result struct {
	Status int
	Body   any
}

type Endpoints struct {
	svc ChatService
	log *logger.Logger
	now func() time.Time
}

func NewEndpoints(svc ChatService, log *logger.Logger) (*Endpoints, error) {
	if svc == nil {
		return nil, errors.New("api: chat service must not be nil")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Endpoints{svc: svc, log: log, now: time.Now}, nil
}

// Chat handles a raw POST /api/chat body. Undecodable JSON is treated the
// same as a missing message.
func (e *Endpoints) Chat(ctx context.Context, body []byte) Result {
	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return Result{Status: http.StatusBadRequest, Body: ErrorResponse{Error: MsgMessageRequired}}
	}

	out, err := e.svc.Chat(ctx, usecase.ChatInput{
		Message:    req.Message,
		GradeLevel: req.GradeLevel,
		SessionID:  req.SessionID,
	})
	if err != nil {
		return e.chatError(err)
	}
	if out.Filtered {
		return Result{Status: http.StatusOK, Body: FilteredResponse{Response: out.Response, IsFiltered: true}}
	}
	return Result{Status: http.StatusOK, Body: ChatResponse{
		Response:   out.Response,
		GradeLevel: out.GradeLevel,
		Timestamp:  domain.FormatTimestamp(out.Timestamp),
		SessionID:  out.SessionID,
	}}
}

func (e *Endpoints) chatError(err error) Result {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) && ucErr.Code == usecase.ErrorInvalidInput {
		msg := MsgMessageRequired
		if ucErr.Reason == usecase.ReasonMessageTooLong {
			msg = MsgMessageTooLong
		}
		return Result{Status: http.StatusBadRequest, Body: ErrorResponse{Error: msg}}
	}
	e.log.Error("chat failed", "error", err)
	return Result{Status: http.StatusInternalServerError, Body: ErrorResponse{Error: MsgGenerateFailed, Details: errorDetails(err)}}
}

func (e *Endpoints) History(ctx context.Context, sessionID string) Result {
	turns, err := e.svc.History(ctx, sessionID)
	if err != nil {
		e.log.Error("history failed", "session_id", sessionID, "error", err)
		return Result{Status: http.StatusInternalServerError, Body: ErrorResponse{Error: MsgHistoryFailed, Details: errorDetails(err)}}
	}
	if turns == nil {
		turns = []domain.ConversationTurn{}
	}
	return Result{Status: http.StatusOK, Body: HistoryResponse{History: turns}}
}

func (e *Endpoints) Health() Result {
	return Result{Status: http.StatusOK, Body: HealthResponse{Status: "OK", Timestamp: domain.FormatTimestamp(e.now())}}
}

// errorDetails exposes only the error code and reason, never the wrapped
// error text.
func errorDetails(err error) string {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		if ucErr.Reason != "" {
			return string(ucErr.Code) + ":" + ucErr.Reason
		}
		return string(ucErr.Code)
	}
	return string(usecase.ErrorInternal)
}
