// Package review is the human decision surface: operators list pending
// detections, inspect their evidence, and approve or reject them. Approval is
// the only path that triggers warning delivery, and it enqueues exactly one
// delivery job.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sift-social/sift/jobs"
	"github.com/sift-social/sift/models"
	"github.com/sift-social/sift/store"
)

type Review struct {
	Store  *store.Store
	Jobs   *jobs.Orchestrator
	Logger *slog.Logger
}

func New(st *store.Store, orch *jobs.Orchestrator, logger *slog.Logger) *Review {
	if logger == nil {
		logger = slog.Default()
	}
	return &Review{
		Store:  st,
		Jobs:   orch,
		Logger: logger.With("source", "review"),
	}
}

// ListPending returns up to limit pending detections, highest score first.
func (r *Review) ListPending(ctx context.Context, limit int) ([]models.Detection, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.Detection
	it := r.Store.ListPending(limit)
	for len(out) < limit {
		det, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if det == nil {
			break
		}
		out = append(out, *det)
	}
	return out, nil
}

// View returns a detection with its evidence unpacked.
func (r *Review) View(ctx context.Context, id uint) (*models.Detection, *models.Evidence, error) {
	det, err := r.Store.GetDetection(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if det.Evidence == "" {
		return det, &models.Evidence{}, nil
	}
	ev, err := models.UnmarshalEvidence(det.Evidence)
	if err != nil {
		return nil, nil, fmt.Errorf("unpacking evidence for detection %d: %w", id, err)
	}
	return det, ev, nil
}

// Approve moves a pending detection to approved and enqueues its warning
// delivery. The state machine guarantees a detection can be approved once, so
// at most one delivery job ever exists per approval.
func (r *Review) Approve(ctx context.Context, id uint) (*models.Detection, error) {
	det, err := r.Store.Approve(ctx, id)
	if err != nil {
		return nil, err
	}

	target := fmt.Sprintf("detection/%d", det.ID)
	payload := fmt.Sprint(det.ID)
	if _, _, err := r.Jobs.Enqueue(ctx, jobs.KindSendWarning, target, payload); err != nil {
		// the detection stays approved; delivery can be re-triggered manually
		r.Logger.Error("approved but failed to enqueue warning delivery", "id", det.ID, "error", err)
		return det, err
	}

	r.Logger.Info("detection approved", "id", det.ID, "kind", det.Kind, "target", det.Target)
	return det, nil
}

// Reject moves a pending detection to rejected. Terminal; no warning is ever
// sent.
func (r *Review) Reject(ctx context.Context, id uint) (*models.Detection, error) {
	det, err := r.Store.Reject(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Logger.Info("detection rejected", "id", det.ID, "kind", det.Kind, "target", det.Target)
	return det, nil
}

// Resend re-enqueues warning delivery for an approved detection whose earlier
// delivery failed. A fresh timestamp sidesteps the enqueue idempotency window.
func (r *Review) Resend(ctx context.Context, id uint) (jobs.Job, error) {
	det, err := r.Store.GetDetection(ctx, id)
	if err != nil {
		return nil, err
	}
	if det.State != models.DetectionApproved {
		return nil, fmt.Errorf("%w: detection %d is %s, only approved detections can be resent",
			store.ErrInvalidState, id, det.State)
	}

	target := fmt.Sprintf("detection/%d", det.ID)
	payload := fmt.Sprint(det.ID)
	job, _, err := r.Jobs.EnqueueAt(ctx, jobs.KindSendWarning, target, payload, time.Now())
	if err != nil {
		return nil, err
	}
	r.Logger.Info("warning delivery re-enqueued", "id", det.ID, "job", job.Key())
	return job, nil
}

// ListFailedJobs surfaces jobs that exhausted their retries, for operator
// attention.
func (r *Review) ListFailedJobs(ctx context.Context) ([]jobs.Job, error) {
	return r.Jobs.Store.ListFailed(ctx)
}
