package model

import "time"

type QueueItemStatus string

const (
	QueueItemPending QueueItemStatus = "pending"
	QueueItemSending QueueItemStatus = "sending"
	QueueItemSent    QueueItemStatus = "sent"
	QueueItemSkipped QueueItemStatus = "skipped"
	QueueItemFailed  QueueItemStatus = "failed"
)

// QueueItem is one recipient of a campaign. Items move strictly
// pending -> sending -> {sent, skipped, failed}; all transitions go through
// conditional updates so a concurrent tick can never double-apply an outcome.
type QueueItem struct {
	ID         int             `db:"id" json:"id"`
	CampaignID int             `db:"campaign_id" json:"campaign_id"`
	Recipient  string          `db:"recipient" json:"recipient"`
	Status     QueueItemStatus `db:"status" json:"status"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}
