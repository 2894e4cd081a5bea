package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"k12-tutor/internal/api"
	"k12-tutor/internal/domain"
	"k12-tutor/internal/usecase"
)

type stubService struct {
	out     usecase.ChatOutput
	err     error
	in      usecase.ChatInput
	history []domain.ConversationTurn
	histID  string
}

func (s *stubService) Chat(_ context.Context, in usecase.ChatInput) (usecase.ChatOutput, error) {
	s.in = in
	return s.out, s.err
}

func (s *stubService) History(_ context.Context, id string) ([]domain.ConversationTurn, error) {
	s.histID = id
	return s.history, nil
}

func newHandler(t *testing.T, svc *stubService) *Handler {
	t.Helper()
	endpoints, err := api.NewEndpoints(svc, nil)
	require.NoError(t, err)
	h, err := NewHandler(endpoints, nil)
	require.NoError(t, err)
	return h
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, nil)
	require.Error(t, err)
}

func TestHandle_Chat(t *testing.T) {
	svc := &stubService{out: usecase.ChatOutput{Response: "hello", GradeLevel: "3-5", SessionID: "s1"}}
	h := newHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/chat", `{"message":"What is rain?","gradeLevel":"3-5","sessionId":"s1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.ChatInput{Message: "What is rain?", GradeLevel: "3-5", SessionID: "s1"}, svc.in)

	out := parseBody[api.ChatResponse](t, resp.Body)
	require.Equal(t, "hello", out.Response)
	require.Equal(t, "s1", out.SessionID)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_Base64Body(t *testing.T) {
	svc := &stubService{out: usecase.ChatOutput{Response: "ok"}}
	h := newHandler(t, svc)

	event := makeEvent(http.MethodPost, "/api/chat", base64.StdEncoding.EncodeToString([]byte(`{"message":"hi"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hi", svc.in.Message)
}

func TestHandle_InvalidBody(t *testing.T) {
	h := newHandler(t, &stubService{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/chat", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, api.MsgMessageRequired, parseBody[api.ErrorResponse](t, resp.Body).Error)
}

func TestHandle_InternalErrorHidesCause(t *testing.T) {
	h := newHandler(t, &stubService{err: &usecase.Error{Code: usecase.ErrorInternal, Reason: usecase.ReasonSessionWrite, Err: errors.New("secret-host:6379 refused")}})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/chat", `{"message":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.NotContains(t, resp.Body, "secret-host")
	require.Equal(t, api.MsgGenerateFailed, parseBody[api.ErrorResponse](t, resp.Body).Error)
}

func TestHandle_History(t *testing.T) {
	svc := &stubService{history: []domain.ConversationTurn{{StudentMessage: "q", TeacherResponse: "a"}}}
	h := newHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/api/conversation/abc-123", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "abc-123", svc.histID)
	require.Len(t, parseBody[api.HistoryResponse](t, resp.Body).History, 1)

	event := makeEvent(http.MethodGet, "/api/conversation/ignored", "")
	event.PathParameters = map[string]string{"sessionId": "from-params"}
	_, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "from-params", svc.histID)
}

func TestHandle_Health(t *testing.T) {
	h := newHandler(t, &stubService{})
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/api/health", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "OK", parseBody[api.HealthResponse](t, resp.Body).Status)
}

func TestHandle_RoutingErrors(t *testing.T) {
	h := newHandler(t, &stubService{})

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/api/chat", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = h.Handle(context.Background(), makeEvent(http.MethodGet, "/nope", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newHandler(t, &stubService{})

	event := makeEvent(http.MethodGet, "/api/health", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
