// Package scheduler drives a running campaign's recipient queue: one
// sequential loop per campaign, FIFO order, a bounded rate between sends,
// and pause/stop honored at tick boundaries only.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mailcast/mailcast-backend/internal/model"
)

// CampaignStore is the slice of campaign persistence the runner needs.
type CampaignStore interface {
	GetByID(id int) (*model.Campaign, error)
	UpdateStatusIf(id int, from []model.CampaignStatus, to model.CampaignStatus) (bool, error)
	SetNextAttemptAt(id int, t *time.Time) error
}

// ItemStore is the slice of queue persistence the runner needs.
type ItemStore interface {
	NextPending(campaignID int) (*model.QueueItem, error)
	UpdateStatusIf(id int, from, to model.QueueItemStatus, lastError string) (bool, error)
	ReconcileSending(campaignID int) (int64, error)
}

// Deliverer resolves one queue item already marked sending. It must not
// return: every failure resolves the item so the loop keeps going.
type Deliverer interface {
	DeliverQueueItem(ctx context.Context, campaign *model.Campaign, item *model.QueueItem) model.QueueItemStatus
}

// Runner attaches to one campaign at a time and ticks it until the queue
// drains, the campaign leaves "running", or the context is cancelled.
type Runner struct {
	Campaigns CampaignStore
	Items     ItemStore
	Deliverer Deliverer
	Lease     Lease
	Log       *zap.Logger

	// LeaseTTL sets the renewal cadence: the lease is renewed every half
	// TTL while waiting, so an inter-send interval longer than the TTL
	// cannot let the lease expire mid-sleep.
	LeaseTTL time.Duration

	// Now and Sleep exist for tests; nil means real time.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run processes the campaign under the scheduler lease. A second worker
// attaching to the same campaign fails to acquire the lease and returns
// immediately, so no two ticks of one campaign ever run concurrently.
func (r *Runner) Run(ctx context.Context, campaignID int) error {
	acquired, err := r.Lease.Acquire(ctx, campaignID)
	if err != nil {
		return err
	}
	if !acquired {
		r.Log.Info("campaign already leased by another worker", zap.Int("campaign_id", campaignID))
		return nil
	}
	defer func() {
		if err := r.Lease.Release(context.Background(), campaignID); err != nil {
			r.Log.Warn("failed to release scheduler lease", zap.Error(err), zap.Int("campaign_id", campaignID))
		}
	}()

	campaign, err := r.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignRunning {
		// Paused or stopped between publish and attach.
		return nil
	}

	// Startup reconciliation: an item stuck in "sending" means a previous
	// run died mid-delivery. The outcome is unknown, so it becomes failed;
	// re-pending it could double-send.
	if n, err := r.Items.ReconcileSending(campaignID); err != nil {
		return err
	} else if n > 0 {
		r.Log.Warn("reconciled interrupted deliveries",
			zap.Int("campaign_id", campaignID),
			zap.Int64("count", n),
		)
	}

	// Honor the persisted inter-send wait from a previous run.
	if campaign.NextAttemptAt != nil {
		if d := campaign.NextAttemptAt.Sub(r.now()); d > 0 {
			if err := r.sleepRenewing(ctx, campaignID, d); err != nil {
				if ctx.Err() != nil {
					return err
				}
				r.Log.Warn("lost scheduler lease, detaching", zap.Error(err), zap.Int("campaign_id", campaignID))
				return nil
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Pause/stop take effect here, at the tick boundary.
		campaign, err = r.Campaigns.GetByID(campaignID)
		if err != nil {
			return err
		}
		if campaign.Status != model.CampaignRunning {
			r.Log.Info("campaign left running state, detaching",
				zap.Int("campaign_id", campaignID),
				zap.String("status", string(campaign.Status)),
			)
			return nil
		}

		// Renew before claiming: an item is only taken while the lease is
		// provably still held.
		if err := r.Lease.Renew(ctx, campaignID); err != nil {
			r.Log.Warn("lost scheduler lease, detaching", zap.Error(err), zap.Int("campaign_id", campaignID))
			return nil
		}

		item, err := r.Items.NextPending(campaignID)
		if err != nil {
			return err
		}
		if item == nil {
			ok, err := r.Campaigns.UpdateStatusIf(campaignID, []model.CampaignStatus{model.CampaignRunning}, model.CampaignCompleted)
			if err != nil {
				return err
			}
			if ok {
				if err := r.Campaigns.SetNextAttemptAt(campaignID, nil); err != nil {
					r.Log.Warn("failed to clear next attempt time", zap.Error(err), zap.Int("campaign_id", campaignID))
				}
				r.Log.Info("campaign completed", zap.Int("campaign_id", campaignID))
			}
			return nil
		}

		ok, err := r.Items.UpdateStatusIf(item.ID, model.QueueItemPending, model.QueueItemSending, "")
		if err != nil {
			return err
		}
		if !ok {
			// Someone else resolved the item since the fetch; pick again.
			continue
		}

		status := r.Deliverer.DeliverQueueItem(ctx, campaign, item)
		r.Log.Info("queue item resolved",
			zap.Int("campaign_id", campaignID),
			zap.Int("item_id", item.ID),
			zap.String("recipient", item.Recipient),
			zap.String("status", string(status)),
		)

		if interval := campaign.Interval(); interval > 0 {
			next := r.now().Add(interval)
			if err := r.Campaigns.SetNextAttemptAt(campaignID, &next); err != nil {
				r.Log.Warn("failed to persist next attempt time", zap.Error(err), zap.Int("campaign_id", campaignID))
			}
			if err := r.sleepRenewing(ctx, campaignID, interval); err != nil {
				if ctx.Err() != nil {
					return err
				}
				r.Log.Warn("lost scheduler lease, detaching", zap.Error(err), zap.Int("campaign_id", campaignID))
				return nil
			}
		}
	}
}

// renewEvery is the lease renewal cadence while waiting: half the TTL so a
// single missed renewal still leaves slack before expiry.
func (r *Runner) renewEvery() time.Duration {
	if r.LeaseTTL > 0 {
		return r.LeaseTTL / 2
	}
	return 30 * time.Second
}

// sleepRenewing waits for d while keeping the lease alive, renewing at the
// half-TTL cadence. Returns the renewal error when the lease is lost.
func (r *Runner) sleepRenewing(ctx context.Context, campaignID int, d time.Duration) error {
	chunk := r.renewEvery()
	for d > 0 {
		step := d
		if step > chunk {
			step = chunk
		}
		if err := r.sleep(ctx, step); err != nil {
			return err
		}
		d -= step
		if d <= 0 {
			return nil
		}
		if err := r.Lease.Renew(ctx, campaignID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
