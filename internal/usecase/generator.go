package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"k12-tutor/internal/domain"
	"k12-tutor/internal/platform/logger"
)

// FallbackResponse is shown to the learner whenever the model call fails.
const FallbackResponse = "I'm having a little trouble thinking right now. Please try asking me again in a moment!"

const (
	defaultModelTimeout = 30 * time.Second
	defaultMaxInflight  = 16
)

// Generator is the external language model: one prompt in, one text out.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ResponseGenerator turns a question into a grade-appropriate answer. Model
// errors are logged and masked behind FallbackResponse; nothing is retried.
type ResponseGenerator struct {
	model    Generator
	log      *logger.Logger
	subject  string
	timeout  time.Duration
	inflight *semaphore.Weighted
	tracer   trace.Tracer
}

type GeneratorOption func(*ResponseGenerator)

// WithSubject narrows the persona to one topic, e.g. "the water cycle".
func WithSubject(subject string) GeneratorOption {
	return func(g *ResponseGenerator) { g.subject = strings.TrimSpace(subject) }
}

// WithModelTimeout bounds a single model call. Zero or negative keeps the default.
func WithModelTimeout(d time.Duration) GeneratorOption {
	return func(g *ResponseGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxInflight caps concurrent model calls across all sessions.
func WithMaxInflight(n int) GeneratorOption {
	return func(g *ResponseGenerator) {
		if n > 0 {
			g.inflight = semaphore.NewWeighted(int64(n))
		}
	}
}

func NewResponseGenerator(model Generator, log *logger.Logger, opts ...GeneratorOption) (*ResponseGenerator, error) {
	if model == nil {
		return nil, errors.New("usecase: model generator must not be nil")
	}
	if log == nil {
		return nil, errors.New("usecase: logger must not be nil")
	}
	g := &ResponseGenerator{
		model:    model,
		log:      log.With("component", "ResponseGenerator"),
		timeout:  defaultModelTimeout,
		inflight: semaphore.NewWeighted(defaultMaxInflight),
		tracer:   otel.Tracer("k12-tutor/usecase"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Respond returns the model's answer verbatim and true, or FallbackResponse
// and false when the model could not produce one.
func (g *ResponseGenerator) Respond(ctx context.Context, question, gradeLevel string, history []domain.ConversationTurn) (string, bool) {
	tag, cfg := domain.ResolveGrade(gradeLevel)
	prompt := buildPrompt(promptContext{subject: g.subject, gradeTag: tag, grade: cfg}, question, history)

	ctx, span := g.tracer.Start(ctx, "tutor.generate", trace.WithAttributes(
		attribute.String("grade_level", tag),
		attribute.Int("history_turns", len(history)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.inflight.Acquire(ctx, 1); err != nil {
		g.fail(span, "waiting for generation slot", err)
		return FallbackResponse, false
	}
	defer g.inflight.Release(1)

	started := time.Now()
	text, err := g.model.Generate(ctx, prompt)
	if err != nil {
		g.fail(span, "model call failed", err)
		return FallbackResponse, false
	}
	if strings.TrimSpace(text) == "" {
		g.fail(span, "model returned empty text", errors.New("empty model response"))
		return FallbackResponse, false
	}
	g.log.Debug("model call succeeded", "grade_level", tag, "latency_ms", time.Since(started).Milliseconds(), "chars", len(text))
	return text, true
}

func (g *ResponseGenerator) fail(span trace.Span, msg string, err error) {
	g.log.Error(msg, "error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}
