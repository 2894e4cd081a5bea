package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"k12-tutor/internal/domain"
	"k12-tutor/internal/platform/logger"
)

type fakeModel struct {
	text   string
	err    error
	prompt string
	calls  int
}

func (f *fakeModel) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.text, f.err
}

type blockingModel struct {
	release  chan struct{}
	inflight atomic.Int32
	peak     atomic.Int32
}

func (b *blockingModel) Generate(ctx context.Context, _ string) (string, error) {
	n := b.inflight.Add(1)
	defer b.inflight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-b.release:
		return "done", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func newTestGenerator(t *testing.T, m Generator, opts ...GeneratorOption) *ResponseGenerator {
	t.Helper()
	g, err := NewResponseGenerator(m, logger.NewNop(), opts...)
	require.NoError(t, err)
	return g
}

func TestNewResponseGenerator_ValidatesDependencies(t *testing.T) {
	_, err := NewResponseGenerator(nil, logger.NewNop())
	require.Error(t, err)
	_, err = NewResponseGenerator(&fakeModel{}, nil)
	require.Error(t, err)
}

func TestRespond_ReturnsModelTextVerbatim(t *testing.T) {
	long := strings.Repeat("word ", 500)
	g := newTestGenerator(t, &fakeModel{text: long})
	text, ok := g.Respond(context.Background(), "What is rain?", "k-2", nil)
	require.True(t, ok)
	require.Equal(t, long, text)
}

func TestRespond_MasksModelErrors(t *testing.T) {
	raw := errors.New("googleapi: Error 429: QUOTA_EXCEEDED for key AIza-secret")
	g := newTestGenerator(t, &fakeModel{err: raw})
	text, ok := g.Respond(context.Background(), "What is rain?", "3-5", nil)
	require.False(t, ok)
	require.Equal(t, FallbackResponse, text)
	require.NotContains(t, text, "QUOTA")
}

func TestRespond_EmptyModelTextFallsBack(t *testing.T) {
	g := newTestGenerator(t, &fakeModel{text: "  \n"})
	text, ok := g.Respond(context.Background(), "What is rain?", "3-5", nil)
	require.False(t, ok)
	require.Equal(t, FallbackResponse, text)
}

func TestRespond_PromptCarriesGradeConfig(t *testing.T) {
	cases := []struct {
		grade    string
		want     []string
		wantNone string
	}{
		{"k-2", []string{"grade level: k-2", `complexity of "very simple"`, "under 50 words", "Use simple, relatable examples."}, "Do not use complex examples."},
		{"3-5", []string{"grade level: 3-5", `complexity of "simple"`, "under 100 words", "Use simple, relatable examples."}, "Do not use complex examples."},
		{"6-8", []string{"grade level: 6-8", `complexity of "moderate"`, "under 150 words", "Do not use complex examples."}, "Use simple, relatable examples."},
		{"9-12", []string{"grade level: 9-12", `complexity of "advanced"`, "under 200 words", "Do not use complex examples."}, "Use simple, relatable examples."},
	}
	for _, tc := range cases {
		m := &fakeModel{text: "ok"}
		g := newTestGenerator(t, m)
		_, _ = g.Respond(context.Background(), "How do clouds form?", tc.grade, nil)
		for _, w := range tc.want {
			require.Contains(t, m.prompt, w, "grade=%s", tc.grade)
		}
		require.NotContains(t, m.prompt, tc.wantNone)
		require.Contains(t, m.prompt, `Student's Question: "How do clouds form?"`)
	}
}

func TestRespond_UnknownGradeMatchesMiddleSchoolPrompt(t *testing.T) {
	known := &fakeModel{text: "ok"}
	unknown := &fakeModel{text: "ok"}
	_, _ = newTestGenerator(t, known).Respond(context.Background(), "q", "6-8", nil)
	_, _ = newTestGenerator(t, unknown).Respond(context.Background(), "q", "graduate", nil)
	require.Equal(t, known.prompt, unknown.prompt)
}

func TestRespond_PromptIncludesEntireHistory(t *testing.T) {
	var history []domain.ConversationTurn
	for i := 0; i < 40; i++ {
		history = append(history, domain.ConversationTurn{
			StudentMessage:  "question " + string(rune('A'+i%26)),
			TeacherResponse: "answer",
			GradeLevel:      "k-2",
			Timestamp:       "2026-01-01T00:00:00.000Z",
		})
	}
	m := &fakeModel{text: "ok"}
	_, _ = newTestGenerator(t, m).Respond(context.Background(), "q", "k-2", history)
	require.Contains(t, m.prompt, "1. [2026-01-01T00:00:00.000Z, grade k-2]")
	require.Contains(t, m.prompt, "40. [2026-01-01T00:00:00.000Z, grade k-2]")
}

func TestRespond_EmptyHistoryPlaceholder(t *testing.T) {
	m := &fakeModel{text: "ok"}
	_, _ = newTestGenerator(t, m).Respond(context.Background(), "q", "k-2", nil)
	require.Contains(t, m.prompt, "(no previous turns)")
}

func TestRespond_SubjectPersona(t *testing.T) {
	generic := &fakeModel{text: "ok"}
	_, _ = newTestGenerator(t, generic).Respond(context.Background(), "q", "k-2", nil)
	require.True(t, strings.HasPrefix(generic.prompt, "You are a friendly and encouraging K-12 teaching assistant."))

	water := &fakeModel{text: "ok"}
	_, _ = newTestGenerator(t, water, WithSubject("the water cycle")).Respond(context.Background(), "q", "k-2", nil)
	require.True(t, strings.HasPrefix(water.prompt, "You are a friendly and encouraging K-12 teaching assistant for the water cycle."))
}

func TestRespond_TimeoutFallsBack(t *testing.T) {
	m := &blockingModel{release: make(chan struct{})}
	g := newTestGenerator(t, m, WithModelTimeout(20*time.Millisecond))
	text, ok := g.Respond(context.Background(), "q", "k-2", nil)
	require.False(t, ok)
	require.Equal(t, FallbackResponse, text)
}

func TestRespond_MaxInflightBoundsConcurrency(t *testing.T) {
	m := &blockingModel{release: make(chan struct{})}
	g := newTestGenerator(t, m, WithMaxInflight(2), WithModelTimeout(5*time.Second))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Respond(context.Background(), "q", "k-2", nil)
		}()
	}
	require.Eventually(t, func() bool { return m.inflight.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(m.release)
	wg.Wait()
	require.LessOrEqual(t, m.peak.Load(), int32(2))
}
