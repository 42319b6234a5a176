// Package llm asks language models for a second opinion on transactions the
// rule classifier could not settle.
package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Provider is one model backend. Complete returns the raw completion text.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Chain tries providers in order and stops at the first usable judgement.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *zap.Logger
}

func NewChain(logger *zap.Logger, timeout time.Duration, providers ...Provider) *Chain {
	return &Chain{
		providers: providers,
		timeout:   timeout,
		logger:    logger,
	}
}

func (c *Chain) Enabled() bool {
	return c != nil && len(c.providers) > 0
}

func (c *Chain) ProviderNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Escalate never fails: provider errors and panics are logged and the next
// provider is tried. It returns nil when no provider produced a usable judgement.
func (c *Chain) Escalate(ctx context.Context, prompt string) *Judgement {
	if !c.Enabled() {
		return nil
	}

	for _, p := range c.providers {
		if ctx.Err() != nil {
			c.logger.Warn("Escalation cancelled", zap.Error(ctx.Err()))
			return nil
		}

		started := time.Now()
		j, err := c.try(ctx, p, prompt)
		if err != nil {
			c.logger.Warn("LLM provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("model", p.Model()),
				zap.Duration("elapsed", time.Since(started)),
				zap.Error(err),
			)
			continue
		}

		c.logger.Info("LLM judgement received",
			zap.String("provider", p.Name()),
			zap.String("model", p.Model()),
			zap.Bool("is_expense", j.IsExpense),
			zap.Float64("confidence", j.Confidence),
			zap.Duration("elapsed", time.Since(started)),
		)
		return j
	}
	return nil
}

func (c *Chain) try(ctx context.Context, p Provider, prompt string) (j *Judgement, err error) {
	defer func() {
		if r := recover(); r != nil {
			j, err = nil, fmt.Errorf("provider panicked: %v", r)
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := p.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to complete: %w", err)
	}

	j, err = ParseJudgement(raw)
	if err != nil {
		return nil, err
	}
	j.Provider = p.Name()
	j.Model = p.Model()
	return j, nil
}
