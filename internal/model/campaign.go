package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

type Campaign struct {
	ID              int            `db:"id" json:"id"`
	UserID          int            `db:"user_id" json:"user_id"`
	Name            string         `db:"name" json:"name"`
	Subject         string         `db:"subject" json:"subject"`
	BodyTemplate    string         `db:"body_template" json:"body_template"`
	IntervalSeconds int            `db:"interval_seconds" json:"interval_seconds"`
	TotalRecipients int            `db:"total_recipients" json:"total_recipients"`
	SentCount       int            `db:"sent_count" json:"sent_count"`
	Status          CampaignStatus `db:"status" json:"status"`
	NextAttemptAt   *time.Time     `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// Interval is the configured wait between two consecutive sends.
func (c *Campaign) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
