// Package moderation decides whether a learner's message may be sent to the
// model at all.
package moderation

import (
	"context"
	"strings"
)

// DefaultBlocklist is the literal word list applied to every message.
var DefaultBlocklist = []string{"violence", "weapon", "drug", "porn"}

// Verdict is the outcome of classifying one message.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Classifier is implemented by anything that can screen learner input.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Blocklist rejects text containing any listed word as a case-insensitive
// substring, so "drugstore" is rejected and paraphrases pass.
type Blocklist struct {
	words []string
}

func NewBlocklist(words ...string) *Blocklist {
	b := &Blocklist{}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			b.words = append(b.words, w)
		}
	}
	return b
}

// IsAppropriate reports whether no blocked word occurs in text.
func (b *Blocklist) IsAppropriate(text string) bool {
	_, blocked := b.match(text)
	return !blocked
}

func (b *Blocklist) Classify(_ context.Context, text string) (Verdict, error) {
	if word, blocked := b.match(text); blocked {
		return Verdict{Allowed: false, Reason: "blocklist:" + word}, nil
	}
	return Verdict{Allowed: true}, nil
}

func (b *Blocklist) match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, w := range b.words {
		if strings.Contains(lower, w) {
			return w, true
		}
	}
	return "", false
}
