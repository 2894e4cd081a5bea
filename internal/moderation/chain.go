package moderation

import (
	"context"

	"k12-tutor/internal/platform/logger"
)

// Chain runs classifiers in order and stops at the first rejection. A
// classifier that errors is skipped so an unreachable moderation service
// never blocks the local blocklist verdict.
type Chain struct {
	log         *logger.Logger
	classifiers []Classifier
}

func NewChain(log *logger.Logger, classifiers ...Classifier) *Chain {
	if log == nil {
		log = logger.NewNop()
	}
	return &Chain{log: log, classifiers: classifiers}
}

func (c *Chain) Classify(ctx context.Context, text string) (Verdict, error) {
	for i, cl := range c.classifiers {
		v, err := cl.Classify(ctx, text)
		if err != nil {
			c.log.Warn("moderation classifier failed, skipping", "index", i, "error", err)
			continue
		}
		if !v.Allowed {
			return v, nil
		}
	}
	return Verdict{Allowed: true}, nil
}
