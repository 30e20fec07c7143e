// internal/service/campaign_service.go
package service

import (
	"time"

	"go.uber.org/zap"

	appErrors "github.com/mailcast/mailcast-backend/internal/errors"
	"github.com/mailcast/mailcast-backend/internal/mail"
	"github.com/mailcast/mailcast-backend/internal/model"
	"github.com/mailcast/mailcast-backend/internal/queue"
	"github.com/mailcast/mailcast-backend/internal/repository"
)

// RunPublisher hands a campaign to the delivery worker.
type RunPublisher interface {
	PublishRun(job queue.RunJob) error
}

type CampaignService struct {
	Campaigns repository.CampaignRepositoryInterface
	Items     repository.QueueItemRepositoryInterface
	Publisher RunPublisher
	Log       *zap.Logger
}

type CampaignDetails struct {
	ID              int                  `json:"id"`
	Name            string               `json:"name"`
	Subject         string               `json:"subject"`
	BodyTemplate    string               `json:"body_template"`
	IntervalSeconds int                  `json:"interval_seconds"`
	TotalRecipients int                  `json:"total_recipients"`
	SentCount       int                  `json:"sent_count"`
	Status          model.CampaignStatus `json:"status"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       *time.Time           `json:"updated_at,omitempty"`
	Stats           map[string]int       `json:"stats"`
}

// CreateCampaign validates the submission and creates the campaign in
// "draft" together with its full recipient queue, atomically. The queue is
// fixed at submission time and never added to afterward.
func (s *CampaignService) CreateCampaign(userID int, name, subject, body string, intervalSeconds int, recipients []string) (*model.Campaign, error) {
	if name == "" {
		return nil, appErrors.NewValidation("campaign name is required")
	}
	if intervalSeconds < 0 {
		return nil, appErrors.NewValidation("interval must not be negative")
	}
	if len(recipients) == 0 {
		return nil, appErrors.NewValidation("at least one recipient is required")
	}
	if err := mail.ValidateSubject(subject); err != nil {
		return nil, err
	}
	if err := mail.ValidateBody(body); err != nil {
		return nil, err
	}
	for _, r := range recipients {
		if err := mail.ValidateAddress(r); err != nil {
			return nil, err
		}
	}

	c := &model.Campaign{
		UserID:          userID,
		Name:            name,
		Subject:         subject,
		BodyTemplate:    body,
		IntervalSeconds: intervalSeconds,
		Status:          model.CampaignDraft,
	}
	if err := s.Campaigns.CreateWithRecipients(c, recipients); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches the caller's campaigns with pagination
func (s *CampaignService) ListCampaigns(userID, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.Campaigns.List(userID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// GetDetails fetches a campaign with its per-status queue stats.
func (s *CampaignService) GetDetails(userID, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.authorize(userID, campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.Items.Stats(campaignID)
	if err != nil {
		return nil, err
	}

	return &CampaignDetails{
		ID:              campaign.ID,
		Name:            campaign.Name,
		Subject:         campaign.Subject,
		BodyTemplate:    campaign.BodyTemplate,
		IntervalSeconds: campaign.IntervalSeconds,
		TotalRecipients: campaign.TotalRecipients,
		SentCount:       campaign.SentCount,
		Status:          campaign.Status,
		CreatedAt:       campaign.CreatedAt,
		UpdatedAt:       campaign.UpdatedAt,
		Stats:           stats,
	}, nil
}

// Start moves a draft or paused campaign to running and hands it to the
// worker. Resuming continues from the first remaining pending item.
func (s *CampaignService) Start(userID, campaignID int) error {
	campaign, err := s.authorize(userID, campaignID)
	if err != nil {
		return err
	}
	ok, err := s.Campaigns.UpdateStatusIf(campaignID, []model.CampaignStatus{model.CampaignDraft, model.CampaignPaused}, model.CampaignRunning)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewValidation("campaign cannot be started from status: %s", campaign.Status)
	}
	return s.publishRun(campaignID, userID)
}

// Pause stops scheduling after the in-flight send finishes. Only valid
// while running.
func (s *CampaignService) Pause(userID, campaignID int) error {
	campaign, err := s.authorize(userID, campaignID)
	if err != nil {
		return err
	}
	ok, err := s.Campaigns.UpdateStatusIf(campaignID, []model.CampaignStatus{model.CampaignRunning}, model.CampaignPaused)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewValidation("campaign cannot be paused from status: %s", campaign.Status)
	}
	return nil
}

// Stop forces completion. Remaining pending items stay as they are; they
// are not cancelled.
func (s *CampaignService) Stop(userID, campaignID int) error {
	campaign, err := s.authorize(userID, campaignID)
	if err != nil {
		return err
	}
	ok, err := s.Campaigns.UpdateStatusIf(campaignID, []model.CampaignStatus{model.CampaignRunning, model.CampaignPaused}, model.CampaignCompleted)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewValidation("campaign cannot be stopped from status: %s", campaign.Status)
	}
	if err := s.Campaigns.SetNextAttemptAt(campaignID, nil); err != nil {
		s.Log.Error("failed to clear next attempt time", zap.Error(err), zap.Int("campaign_id", campaignID))
	}
	return nil
}

// Continue reopens a completed campaign that still has unresolved items.
// Completion is terminal otherwise; reopening is an explicit operator
// action, never automatic.
func (s *CampaignService) Continue(userID, campaignID int) error {
	campaign, err := s.authorize(userID, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignCompleted {
		return appErrors.NewValidation("only a completed campaign can be continued")
	}
	stats, err := s.Items.Stats(campaignID)
	if err != nil {
		return err
	}
	if stats["pending"]+stats["sending"] == 0 {
		return appErrors.NewValidation("campaign has no unresolved recipients to continue")
	}
	ok, err := s.Campaigns.UpdateStatusIf(campaignID, []model.CampaignStatus{model.CampaignCompleted}, model.CampaignRunning)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.NewValidation("campaign is no longer completed")
	}
	return s.publishRun(campaignID, userID)
}

func (s *CampaignService) authorize(userID, campaignID int) (*model.Campaign, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.UserID != userID {
		return nil, appErrors.NewForbidden("campaign %d does not belong to caller", campaignID)
	}
	return campaign, nil
}

func (s *CampaignService) publishRun(campaignID, userID int) error {
	if err := s.Publisher.PublishRun(queue.RunJob{CampaignID: campaignID, UserID: userID}); err != nil {
		s.Log.Error("failed to publish run job", zap.Error(err), zap.Int("campaign_id", campaignID))
		return err
	}
	return nil
}
