// Package vision adapts a go-agents vision agent into the two screenshot
// calls the pipeline makes: content classification and concern detection.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/internal/metrics"
	"github.com/JaimeStill/vigil/internal/prompts"
)

const (
	secondaryMinConfidence = 50
	maxSecondaries         = 2
)

// Input is a screenshot and the context the device reported with it.
type Input struct {
	Image     []byte
	MediaType string
	URL       string
	Title     string
}

// Classifier is the vision collaborator used by the orchestrator.
type Classifier interface {
	Classify(ctx context.Context, in Input) (Classification, error)
	DetectConcerns(ctx context.Context, in Input) ([]concerns.Concern, error)
}

// PromptSource supplies the composed system prompt for a stage.
type PromptSource interface {
	Compose(ctx context.Context, stage prompts.Stage) (string, error)
}

type classifier struct {
	model   Model
	prompts PromptSource
	breaker *gobreaker.CircuitBreaker
	cfg     *Config
	logger  *slog.Logger
}

// New creates a Classifier that calls model through a circuit breaker with
// per-attempt timeouts and exponential backoff on transient failures.
func New(model Model, source PromptSource, cfg *Config, logger *slog.Logger) Classifier {
	logger = logger.With("system", "vision")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vision",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldownDuration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
	})

	return &classifier{
		model:   model,
		prompts: source,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
	}
}

func (c *classifier) Classify(ctx context.Context, in Input) (Classification, error) {
	content, err := c.call(ctx, prompts.StageClassify, c.cfg.ClassifyTimeoutDuration(), in,
		"Classify this screenshot.")
	if err != nil {
		return Classification{}, err
	}

	result, err := DecodeClassification(content)
	if err != nil {
		c.logger.WarnContext(ctx, "classification decode failed", "error", err)
		return Classification{}, err
	}

	return ApplyConfidencePolicy(result, c.cfg.LowConfidenceFloor, c.cfg.ReviewThreshold), nil
}

func (c *classifier) DetectConcerns(ctx context.Context, in Input) ([]concerns.Concern, error) {
	content, err := c.call(ctx, prompts.StageConcerns, c.cfg.ConcernsTimeoutDuration(), in,
		"Identify any content concerns in this screenshot.")
	if err != nil {
		return nil, err
	}

	result, err := DecodeConcerns(content)
	if err != nil {
		c.logger.WarnContext(ctx, "concern decode failed", "error", err)
		return nil, err
	}

	return result, nil
}

// ApplyConfidencePolicy filters secondary categories and applies the
// low-confidence floor and review threshold to a decoded classification.
func ApplyConfidencePolicy(c Classification, floor, review int) Classification {
	c.Confidence = concerns.Clamp(c.Confidence)

	if c.Confidence < floor {
		return Classification{
			Category:            concerns.CategoryOther,
			Confidence:          c.Confidence,
			SecondaryCategories: []SecondaryCategory{},
			IsLowConfidence:     true,
			NeedsReview:         true,
		}
	}

	secondaries := make([]SecondaryCategory, 0, maxSecondaries)
	for _, s := range c.SecondaryCategories {
		s.Confidence = concerns.Clamp(s.Confidence)
		if s.Confidence <= secondaryMinConfidence || s.Category == c.Category {
			continue
		}
		if slices.ContainsFunc(secondaries, func(e SecondaryCategory) bool { return e.Category == s.Category }) {
			continue
		}
		secondaries = append(secondaries, s)
	}
	slices.SortStableFunc(secondaries, func(a, b SecondaryCategory) int {
		return b.Confidence - a.Confidence
	})
	if len(secondaries) > maxSecondaries {
		secondaries = secondaries[:maxSecondaries]
	}

	c.SecondaryCategories = secondaries
	c.IsLowConfidence = false
	c.NeedsReview = c.Confidence < review
	return c
}

func (c *classifier) call(ctx context.Context, stage prompts.Stage, timeout time.Duration, in Input, instruction string) (string, error) {
	system, err := c.prompts.Compose(ctx, stage)
	if err != nil {
		return "", fmt.Errorf("compose %s prompt: %w", stage, err)
	}

	req := Request{
		System:    system,
		Prompt:    userPrompt(instruction, in),
		Image:     in.Image,
		MediaType: in.MediaType,
	}

	attempts := 0
	op := func() (string, error) {
		attempts++
		content, err := c.attempt(ctx, stage, timeout, req)
		if err != nil && !IsTransient(err) {
			return "", backoff.Permanent(err)
		}
		return content, err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "vision call failed, retrying",
			"stage", stage,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	}

	content, err := backoff.RetryNotifyWithData(op, c.newBackOff(ctx), notify)
	if err != nil {
		return "", fmt.Errorf("%s call failed after %d attempt(s): %w", stage, attempts, err)
	}

	c.logger.DebugContext(ctx, "vision call complete", "stage", stage, "attempts", attempts)
	return content, nil
}

// attempt runs one model call through the breaker and races it against
// timeout. A call that loses the race is abandoned; its result is discarded.
func (c *classifier) attempt(ctx context.Context, stage prompts.Stage, timeout time.Duration, req Request) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		content string
		err     error
	}

	start := time.Now()
	done := make(chan result, 1)

	go func() {
		v, err := c.breaker.Execute(func() (any, error) {
			return c.model.Complete(attemptCtx, req)
		})
		content, _ := v.(string)
		done <- result{content: content, err: err}
	}()

	var r result
	select {
	case r = <-done:
		if r.err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			r.err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			r.err = err
		} else {
			r.err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
	}

	metrics.VisionDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	metrics.VisionAttempts.WithLabelValues(string(stage), outcome(r.err)).Inc()

	return r.content, r.err
}

func (c *classifier) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialBackoffDuration()
	exp.MaxInterval = c.cfg.MaxBackoffDuration()
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.MaxRetries)), ctx)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}

func userPrompt(instruction string, in Input) string {
	var b strings.Builder
	b.WriteString(instruction)
	if in.URL != "" {
		b.WriteString("\nURL: ")
		b.WriteString(in.URL)
	}
	if in.Title != "" {
		b.WriteString("\nPage title: ")
		b.WriteString(in.Title)
	}
	return b.String()
}
