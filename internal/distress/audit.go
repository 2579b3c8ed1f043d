package distress

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/internal/metrics"
)

// Subject identifies the screenshot whose concerns are being suppressed.
type Subject struct {
	ScreenshotID string
	ChildID      string
	FamilyID     string
}

// AuditRecord is the admin-only trace of a suppression. It is written once
// per screenshot and never served to family-facing APIs.
type AuditRecord struct {
	ID              uuid.UUID
	ScreenshotID    string
	ChildID         string
	FamilyID        string
	Category        string
	Severity        concerns.Severity
	Reason          string
	SuppressedAt    time.Time
	ReleasableAfter time.Time
}

// System relabels concerns and records suppressions.
type System interface {
	// Suppress converts cs into flags, holding self-harm concerns. When a
	// flag is held, one audit record is written; a failed audit write is
	// returned as an error.
	Suppress(ctx context.Context, subject Subject, cs []concerns.Concern, detectedAt time.Time) ([]concerns.Flag, error)
}

type auditor struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a distress system writing to suppression_audit.
func New(db *sql.DB, logger *slog.Logger) System {
	return &auditor{
		db:     db,
		logger: logger.With("system", "distress"),
	}
}

func (a *auditor) Suppress(ctx context.Context, subject Subject, cs []concerns.Concern, detectedAt time.Time) ([]concerns.Flag, error) {
	flags, held := Suppress(cs, detectedAt)
	if !held {
		return flags, nil
	}

	record := newAuditRecord(subject, flags)
	if err := a.write(ctx, record); err != nil {
		return nil, err
	}

	metrics.Suppressions.Inc()
	a.logger.InfoContext(ctx, "self-harm concern placed on sensitive hold",
		"screenshot_id", subject.ScreenshotID,
		"child_id", subject.ChildID,
		"releasable_after", record.ReleasableAfter,
	)
	return flags, nil
}

func newAuditRecord(subject Subject, flags []concerns.Flag) AuditRecord {
	r := AuditRecord{
		ID:           uuid.New(),
		ScreenshotID: subject.ScreenshotID,
		ChildID:      subject.ChildID,
		FamilyID:     subject.FamilyID,
	}
	for _, f := range flags {
		if f.Status != concerns.StatusSensitiveHold {
			continue
		}
		r.Category = f.Category
		r.Severity = f.Severity
		r.Reason = f.SuppressionReason
		r.SuppressedAt = f.DetectedAt
		r.ReleasableAfter = *f.ReleasableAfter
		break
	}
	return r
}

func (a *auditor) write(ctx context.Context, r AuditRecord) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO suppression_audit
			(id, screenshot_id, child_id, family_id, category, severity, reason, suppressed_at, releasable_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.ScreenshotID, r.ChildID, r.FamilyID,
		r.Category, string(r.Severity), r.Reason, r.SuppressedAt, r.ReleasableAfter,
	)
	if err != nil {
		return fmt.Errorf("write suppression audit: %w", err)
	}
	return nil
}
