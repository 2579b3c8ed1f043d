package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/JaimeStill/vigil/internal/approvals"
	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/internal/distress"
	"github.com/JaimeStill/vigil/internal/flags"
	"github.com/JaimeStill/vigil/internal/metrics"
	"github.com/JaimeStill/vigil/internal/queue"
	"github.com/JaimeStill/vigil/internal/screenshots"
	"github.com/JaimeStill/vigil/internal/vision"
)

// ScreenshotStore holds job state and results.
type ScreenshotStore interface {
	Claim(ctx context.Context, id string) (*screenshots.Screenshot, error)
	Complete(ctx context.Context, id string, result screenshots.Result) error
	Fail(ctx context.Context, id string, message string, retryCount int) error
	Reset(ctx context.Context, id string) (*screenshots.Screenshot, error)
	RecordDebug(ctx context.Context, rec screenshots.DebugRecord) error
}

// ImageReader loads screenshot bytes with a resolved media type.
type ImageReader interface {
	ReadAll(ctx context.Context, key string) ([]byte, string, error)
}

// CrisisGate reports whether a URL is a protected crisis resource.
type CrisisGate interface {
	IsProtected(rawURL *string) bool
}

type Calibrator interface {
	Adjust(ctx context.Context, familyID string, cs []concerns.Concern) []concerns.Concern
}

type ApprovalAdjuster interface {
	Adjust(ctx context.Context, childID, appID string, cs []concerns.Concern) []concerns.Concern
}

type ThresholdFilter interface {
	Filter(ctx context.Context, familyID string, cs []concerns.Concern) []concerns.Concern
}

type Suppressor interface {
	Suppress(ctx context.Context, subject distress.Subject, cs []concerns.Concern, detectedAt time.Time) ([]concerns.Flag, error)
}

type Throttler interface {
	Apply(ctx context.Context, familyID, childID string, ids []string, fs []concerns.Flag, now time.Time) []concerns.Flag
}

type FlagWriter interface {
	CreateBatch(ctx context.Context, screenshotID string, fs []flags.Flag) error
}

// Deps are the pipeline collaborators, one per stage.
type Deps struct {
	Screenshots ScreenshotStore
	Images      ImageReader
	Crisis      CrisisGate
	Vision      vision.Classifier
	Calibration Calibrator
	Approvals   ApprovalAdjuster
	Thresholds  ThresholdFilter
	Distress    Suppressor
	Throttle    Throttler
	Flags       FlagWriter
	Publisher   queue.Publisher
}

// Queues names the queues the orchestrator publishes to.
type Queues struct {
	Classify string
	Describe string
}

// Orchestrator runs classification jobs. It is safe for concurrent use;
// jobs share no in-process state.
type Orchestrator struct {
	deps   Deps
	cfg    *Config
	queues Queues
	now    func() time.Time
	logger *slog.Logger

	pending sync.WaitGroup
}

// New creates an Orchestrator.
func New(deps Deps, cfg *Config, queues Queues, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		queues: queues,
		now:    time.Now,
		logger: logger.With("system", "classify"),
	}
}

// WithClock replaces the orchestrator's time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

func (o *Orchestrator) Handler() *Handler {
	return NewHandler(o, o.logger)
}

// HandleDelivery decodes a queued job and processes it.
func (o *Orchestrator) HandleDelivery(ctx context.Context, body []byte) error {
	job, err := DecodeJob(body)
	if err != nil {
		return err
	}
	return o.Process(ctx, job)
}

// Enqueue publishes job to the classify queue.
func (o *Orchestrator) Enqueue(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	if o.deps.Publisher == nil {
		return queue.ErrNotConnected
	}
	return o.deps.Publisher.Publish(ctx, o.queues.Classify, job)
}

// Reclassify resets a completed or failed screenshot to pending and
// enqueues a new attempt.
func (o *Orchestrator) Reclassify(ctx context.Context, id string) (*screenshots.Screenshot, error) {
	s, err := o.deps.Screenshots.Reset(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := o.Enqueue(ctx, JobFor(s)); err != nil {
		return nil, fmt.Errorf("enqueue reclassification: %w", err)
	}

	o.logger.InfoContext(ctx, "reclassification enqueued", "screenshot_id", id, "retry_count", s.RetryCount+1)
	return s, nil
}

// Process claims the job's screenshot, runs the pipeline, and records the
// result or the failure. A screenshot that is already claimed is skipped.
func (o *Orchestrator) Process(ctx context.Context, job Job) error {
	start := o.now()
	logger := o.logger.With("screenshot_id", job.ScreenshotID, "child_id", job.ChildID)

	if err := job.validate(); err != nil {
		return err
	}

	if _, err := o.deps.Screenshots.Claim(ctx, job.ScreenshotID); err != nil {
		switch {
		case errors.Is(err, screenshots.ErrNotClaimable):
			logger.InfoContext(ctx, "screenshot already claimed, skipping")
			o.observe("skipped", start)
			return nil
		case errors.Is(err, screenshots.ErrNotFound):
			o.observe("skipped", start)
			return fmt.Errorf("claim: %w", err)
		default:
			return fmt.Errorf("%w: claim: %w", queue.ErrRequeue, err)
		}
	}

	result, err := o.run(ctx, job, logger)
	if err != nil {
		o.observe("failed", start)
		logger.ErrorContext(ctx, "classification failed", "retry_count", job.RetryCount, "error", err)

		if ferr := o.deps.Screenshots.Fail(context.WithoutCancel(ctx), job.ScreenshotID, err.Error(), job.RetryCount); ferr != nil {
			logger.ErrorContext(ctx, "failure record write failed", "error", ferr)
		}
		return err
	}

	if result.CrisisProtected {
		o.observe("crisis", start)
		return nil
	}

	o.observe("completed", start)
	o.describe(ctx, job, result)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, job Job, logger *slog.Logger) (screenshots.Result, error) {
	image, mediaType, err := o.deps.Images.ReadAll(ctx, job.StoragePath)
	if err != nil {
		return screenshots.Result{}, fmt.Errorf("read image: %w", err)
	}

	in := vision.Input{
		Image:     image,
		MediaType: mediaType,
		URL:       deref(job.URL),
		Title:     deref(job.Title),
	}

	protected := o.deps.Crisis.IsProtected(job.URL)

	c, err := o.deps.Vision.Classify(ctx, in)
	if err != nil {
		return screenshots.Result{}, fmt.Errorf("classify: %w", err)
	}

	result := screenshots.Result{
		Category:            c.Category,
		Confidence:          c.Confidence,
		SecondaryCategories: secondaries(c.SecondaryCategories),
		IsLowConfidence:     c.IsLowConfidence,
		NeedsReview:         c.NeedsReview,
		CrisisProtected:     protected,
		RetryCount:          job.RetryCount,
	}

	if protected {
		metrics.CrisisBypasses.Inc()
		logger.InfoContext(ctx, "crisis resource, concern detection bypassed")
	} else {
		n, err := o.flag(ctx, job, in, logger)
		if err != nil {
			return result, err
		}
		logger.InfoContext(ctx, "concerns flagged", "flags", n)
	}

	result.ClassifiedAt = o.now().UTC()
	if err := o.deps.Screenshots.Complete(ctx, job.ScreenshotID, result); err != nil {
		return result, fmt.Errorf("write result: %w", err)
	}
	return result, nil
}

func (o *Orchestrator) flag(ctx context.Context, job Job, in vision.Input, logger *slog.Logger) (int, error) {
	detected, err := o.deps.Vision.DetectConcerns(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("detect concerns: %w", err)
	}
	o.debug(ctx, job.ScreenshotID, "detected", detected)

	appID := approvals.AppIdentifier(deref(job.URL), deref(job.AppName))

	adjusted := o.deps.Calibration.Adjust(ctx, job.FamilyID, detected)
	adjusted = o.deps.Approvals.Adjust(ctx, job.ChildID, appID, adjusted)
	kept := o.deps.Thresholds.Filter(ctx, job.FamilyID, adjusted)

	o.debug(ctx, job.ScreenshotID, "filtered", map[string]any{
		"appId":    appID,
		"adjusted": adjusted,
		"kept":     kept,
	})

	if len(kept) == 0 {
		return 0, nil
	}

	detectedAt := o.now().UTC()
	subject := distress.Subject{
		ScreenshotID: job.ScreenshotID,
		ChildID:      job.ChildID,
		FamilyID:     job.FamilyID,
	}

	suppressed, err := o.deps.Distress.Suppress(ctx, subject, kept, detectedAt)
	if err != nil {
		return 0, fmt.Errorf("suppress: %w", err)
	}

	ids := make([]string, len(suppressed))
	for i, f := range suppressed {
		ids[i] = flags.GenerateID(job.ScreenshotID, f.Category, detectedAt)
	}

	final := o.deps.Throttle.Apply(ctx, job.FamilyID, job.ChildID, ids, suppressed, detectedAt)

	records := make([]flags.Flag, len(final))
	for i, f := range final {
		records[i] = flags.Flag{
			ID:           ids[i],
			ChildID:      job.ChildID,
			FamilyID:     job.FamilyID,
			ScreenshotID: job.ScreenshotID,
			Flag:         f,
		}
	}

	if err := o.deps.Flags.CreateBatch(ctx, job.ScreenshotID, records); err != nil {
		return 0, fmt.Errorf("create flags: %w", err)
	}
	return len(records), nil
}

// debug writes a stage snapshot when debug records are enabled. Failures
// are logged and never fail the job.
func (o *Orchestrator) debug(ctx context.Context, screenshotID, stage string, v any) {
	if !o.cfg.DebugRecords {
		return
	}

	payload, err := json.Marshal(v)
	if err == nil {
		err = o.deps.Screenshots.RecordDebug(ctx, screenshots.DebugRecord{
			ScreenshotID: screenshotID,
			Stage:        stage,
			Payload:      payload,
		})
	}
	if err != nil {
		o.logger.WarnContext(ctx, "debug record dropped",
			"screenshot_id", screenshotID,
			"stage", stage,
			"error", err,
		)
	}
}

// describe publishes a description request in the background.
func (o *Orchestrator) describe(ctx context.Context, job Job, result screenshots.Result) {
	if o.deps.Publisher == nil || o.queues.Describe == "" {
		return
	}

	req := DescribeRequest{
		ScreenshotID: job.ScreenshotID,
		ChildID:      job.ChildID,
		FamilyID:     job.FamilyID,
		StoragePath:  job.StoragePath,
		Category:     result.Category,
	}

	o.pending.Go(func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.DescribeTimeoutDuration())
		defer cancel()

		if err := o.deps.Publisher.Publish(pctx, o.queues.Describe, req); err != nil {
			o.logger.WarnContext(pctx, "describe request not published",
				"screenshot_id", job.ScreenshotID,
				"error", err,
			)
		}
	})
}

// Wait blocks until background description requests have been sent.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

func (o *Orchestrator) observe(result string, start time.Time) {
	metrics.JobsProcessed.WithLabelValues(result).Inc()
	metrics.JobDuration.WithLabelValues(result).Observe(o.now().Sub(start).Seconds())
}

func secondaries(in []vision.SecondaryCategory) []screenshots.Secondary {
	out := make([]screenshots.Secondary, len(in))
	for i, s := range in {
		out[i] = screenshots.Secondary{Category: s.Category, Confidence: s.Confidence}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
