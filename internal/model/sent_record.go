package model

import "time"

// SentRecord is the append-only history of a successful delivery. The
// tracking token is minted at send time; open/click timestamps are stamped
// later by the tracking endpoints, at most once per event kind.
type SentRecord struct {
	ID            int        `db:"id" json:"id"`
	UserID        int        `db:"user_id" json:"user_id"`
	CampaignID    *int       `db:"campaign_id" json:"campaign_id,omitempty"`
	Recipient     string     `db:"recipient" json:"recipient"`
	Subject       string     `db:"subject" json:"subject"`
	TrackingToken string     `db:"tracking_token" json:"tracking_token"`
	SentAt        time.Time  `db:"sent_at" json:"sent_at"`
	OpenedAt      *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt     *time.Time `db:"clicked_at" json:"clicked_at,omitempty"`
}
