package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlocklist_RejectsSubstringsCaseInsensitive(t *testing.T) {
	b := NewBlocklist(DefaultBlocklist...)
	cases := []string{
		"Tell me about weapon design",
		"VIOLENCE in movies",
		"what is a drugstore",
		"Weapons of the middle ages",
	}
	for _, text := range cases {
		require.False(t, b.IsAppropriate(text), text)
		v, err := b.Classify(context.Background(), text)
		require.NoError(t, err)
		require.False(t, v.Allowed, text)
		require.Contains(t, v.Reason, "blocklist:")
	}
}

func TestBlocklist_AllowsOrdinaryQuestions(t *testing.T) {
	b := NewBlocklist(DefaultBlocklist...)
	for _, text := range []string{"What is evaporation?", "How do plants drink water?", ""} {
		require.True(t, b.IsAppropriate(text), text)
		v, err := b.Classify(context.Background(), text)
		require.NoError(t, err)
		require.True(t, v.Allowed)
	}
}

func TestNewBlocklist_IgnoresBlankWords(t *testing.T) {
	b := NewBlocklist(" ", "", " Gambling ")
	require.True(t, b.IsAppropriate("hello"))
	require.False(t, b.IsAppropriate("online gambling"))
}

type stubClassifier struct {
	verdict Verdict
	err     error
	calls   int
}

func (s *stubClassifier) Classify(_ context.Context, _ string) (Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

func TestChain_StopsAtFirstRejection(t *testing.T) {
	second := &stubClassifier{verdict: Verdict{Allowed: true}}
	c := NewChain(nil, NewBlocklist(DefaultBlocklist...), second)

	v, err := c.Classify(context.Background(), "weapon")
	require.NoError(t, err)
	require.False(t, v.Allowed)
	require.Zero(t, second.calls)
}

func TestChain_SkipsFailingClassifier(t *testing.T) {
	failing := &stubClassifier{err: errors.New("moderation down")}
	c := NewChain(nil, NewBlocklist(DefaultBlocklist...), failing)

	v, err := c.Classify(context.Background(), "What is rain?")
	require.NoError(t, err)
	require.True(t, v.Allowed)
	require.Equal(t, 1, failing.calls)
}

func TestChain_LaterClassifierCanReject(t *testing.T) {
	remote := &stubClassifier{verdict: Verdict{Allowed: false, Reason: "openai:flagged"}}
	c := NewChain(nil, NewBlocklist(DefaultBlocklist...), remote)

	v, err := c.Classify(context.Background(), "something subtle")
	require.NoError(t, err)
	require.False(t, v.Allowed)
	require.Equal(t, "openai:flagged", v.Reason)
}
