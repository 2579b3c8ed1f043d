package api

import (
	"fmt"

	"github.com/JaimeStill/vigil/internal/approvals"
	"github.com/JaimeStill/vigil/internal/calibration"
	"github.com/JaimeStill/vigil/internal/classify"
	"github.com/JaimeStill/vigil/internal/config"
	"github.com/JaimeStill/vigil/internal/crisis"
	"github.com/JaimeStill/vigil/internal/distress"
	"github.com/JaimeStill/vigil/internal/flags"
	"github.com/JaimeStill/vigil/internal/prompts"
	"github.com/JaimeStill/vigil/internal/queue"
	"github.com/JaimeStill/vigil/internal/screenshots"
	"github.com/JaimeStill/vigil/internal/thresholds"
	"github.com/JaimeStill/vigil/internal/throttle"
	"github.com/JaimeStill/vigil/internal/vision"
	"github.com/JaimeStill/vigil/pkg/lifecycle"
)

// Domain holds all domain systems that comprise the API and the
// classification pipeline.
type Domain struct {
	Prompts     prompts.System
	Screenshots screenshots.System
	Flags       flags.System
	Approvals   approvals.System
	Thresholds  thresholds.System
	Throttle    throttle.System
	Calibration calibration.System
	Distress    distress.System
	Crisis      *crisis.Detector
	Vision      vision.Classifier
	Classify    *classify.Orchestrator

	broker        *queue.Broker
	classifyQueue string
	release       *distress.Scheduler
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	db := runtime.Database.Connection()
	pipeline := &cfg.Pipeline

	detector, err := crisis.New(pipeline.CrisisDomains...)
	if err != nil {
		return nil, fmt.Errorf("crisis detector: %w", err)
	}

	promptsSystem := prompts.New(db, runtime.Logger, runtime.Pagination)

	model, err := vision.NewAgentModel(&cfg.Agent, nil)
	if err != nil {
		return nil, err
	}

	classifier := vision.New(
		model,
		promptsSystem,
		&cfg.Vision,
		runtime.Logger,
	)

	screenshotsSystem := screenshots.New(db, runtime.Storage, runtime.Logger, runtime.Pagination)
	flagsSystem := flags.New(db, runtime.Logger, runtime.Pagination, pipeline.FlagConcurrency)

	approvalsSystem := approvals.New(
		db, runtime.Cache, runtime.CacheTTL,
		pipeline.ApprovalPenalty, pipeline.ApprovalBonus,
		runtime.Logger,
	)
	calibrationSystem := calibration.New(db, runtime.Cache, runtime.CacheTTL, pipeline.MinCorrections, runtime.Logger)
	thresholdsSystem := thresholds.New(db, runtime.Cache, runtime.CacheTTL, runtime.Logger)
	throttleSystem := throttle.New(db, runtime.Cache, runtime.CacheTTL, runtime.Logger)
	distressSystem := distress.New(db, runtime.Logger)

	orchestrator := classify.New(
		classify.Deps{
			Screenshots: screenshotsSystem,
			Images:      runtime.Storage,
			Crisis:      detector,
			Vision:      classifier,
			Calibration: calibrationSystem,
			Approvals:   approvalsSystem,
			Thresholds:  thresholdsSystem,
			Distress:    distressSystem,
			Throttle:    throttleSystem,
			Flags:       flagsSystem,
			Publisher:   runtime.Queue,
		},
		pipeline,
		classify.Queues{
			Classify: cfg.Queue.ClassifyQueue,
			Describe: cfg.Queue.DescribeQueue,
		},
		runtime.Logger,
	)

	return &Domain{
		Prompts:     promptsSystem,
		Screenshots: screenshotsSystem,
		Flags:       flagsSystem,
		Approvals:   approvalsSystem,
		Thresholds:  thresholdsSystem,
		Throttle:    throttleSystem,
		Calibration: calibrationSystem,
		Distress:    distressSystem,
		Crisis:      detector,
		Vision:      classifier,
		Classify:    orchestrator,

		broker:        runtime.Queue,
		classifyQueue: cfg.Queue.ClassifyQueue,
		release:       distress.NewScheduler(flagsSystem, pipeline.ReleaseSchedule, runtime.Logger),
	}, nil
}

// Start attaches the job consumer and the held-flag release schedule to lc.
// Shutdown waits for in-flight description publishes.
func (d *Domain) Start(lc *lifecycle.Coordinator) error {
	if err := d.release.Start(lc); err != nil {
		return err
	}

	d.broker.Consume(lc, d.classifyQueue, d.Classify.HandleDelivery)

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.Classify.Wait()
	})
	return nil
}
