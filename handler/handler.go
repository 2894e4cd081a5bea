package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"k12-tutor/internal/api"
	"k12-tutor/internal/platform/logger"
)

const correlationHeader = "X-Correlation-Id"

const conversationPrefix = "/api/conversation/"

type Handler struct {
	endpoints *api.Endpoints
	log       *logger.Logger
}

func NewHandler(endpoints *api.Endpoints, log *logger.Logger) (*Handler, error) {
	if endpoints == nil {
		return nil, errors.New("handler: endpoints must not be nil")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{endpoints: endpoints, log: log.With("component", "LambdaHandler")}, nil
}

// Handle routes an API Gateway proxy event to the tutor endpoints. Transport
// problems become HTTP responses; the returned error is always nil.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.log.With("correlation_id", correlationID, "method", event.HTTPMethod, "path", event.Path)

	res := h.route(ctx, event)
	log.Info("request handled", "status", res.Status)
	return jsonResponse(res, correlationID), nil
}

func (h *Handler) route(ctx context.Context, event events.APIGatewayProxyRequest) api.Result {
	path := strings.TrimRight(event.Path, "/")
	method := strings.ToUpper(event.HTTPMethod)

	switch {
	case path == "/api/chat":
		if method != http.MethodPost {
			return methodNotAllowed()
		}
		body, err := requestBody(event)
		if err != nil {
			return api.Result{Status: http.StatusBadRequest, Body: api.ErrorResponse{Error: api.MsgMessageRequired}}
		}
		return h.endpoints.Chat(ctx, body)

	case strings.HasPrefix(path, conversationPrefix):
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		sessionID := event.PathParameters["sessionId"]
		if sessionID == "" {
			sessionID = strings.TrimPrefix(path, conversationPrefix)
		}
		return h.endpoints.History(ctx, sessionID)

	case path == "/api/health":
		if method != http.MethodGet {
			return methodNotAllowed()
		}
		return h.endpoints.Health()
	}
	return api.Result{Status: http.StatusNotFound, Body: api.ErrorResponse{Error: "Not found"}}
}

func methodNotAllowed() api.Result {
	return api.Result{Status: http.StatusMethodNotAllowed, Body: api.ErrorResponse{Error: "Method not allowed"}}
}

func requestBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if !event.IsBase64Encoded {
		return []byte(event.Body), nil
	}
	return base64.StdEncoding.DecodeString(event.Body)
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func jsonResponse(res api.Result, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(res.Body)
	if err != nil {
		res.Status = http.StatusInternalServerError
		body = []byte(`{"error":"` + api.MsgGenerateFailed + `"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: res.Status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}
