// internal/service/send_service.go
package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/mailcast/mailcast-backend/internal/errors"
	"github.com/mailcast/mailcast-backend/internal/mail"
	"github.com/mailcast/mailcast-backend/internal/metrics"
	"github.com/mailcast/mailcast-backend/internal/model"
	"github.com/mailcast/mailcast-backend/internal/repository"
	"github.com/mailcast/mailcast-backend/internal/smtp"
)

// genericDeliveryError is what callers and queue rows see on a transport
// failure; the real reply code and server text only go to internal logs.
const genericDeliveryError = "delivery failed"

// Transport performs one SMTP delivery over a fresh connection.
type Transport interface {
	Deliver(ctx context.Context, cred *model.SmtpCredential, from, to string, msg []byte) error
}

type SendService struct {
	Campaigns   repository.CampaignRepositoryInterface
	Items       repository.QueueItemRepositoryInterface
	SentRecords repository.SentRecordRepositoryInterface
	Credentials repository.CredentialRepositoryInterface
	Transport   Transport
	Log         *zap.Logger
}

type SendRequest struct {
	Recipient   string `json:"recipient"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	QueueItemID *int   `json:"queue_item_id,omitempty"`
	CampaignID  *int   `json:"campaign_id,omitempty"`
	TestMode    bool   `json:"test_mode,omitempty"`
}

type SendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Send is the invocation boundary for a single delivery attempt. Test mode
// performs exactly one delivery with no queue, duplicate or counter
// bookkeeping.
func (s *SendService) Send(ctx context.Context, userID int, req SendRequest) (*SendResult, error) {
	if err := mail.ValidateAddress(req.Recipient); err != nil {
		return nil, err
	}
	if err := mail.ValidateSubject(req.Subject); err != nil {
		return nil, err
	}
	if err := mail.ValidateBody(req.Body); err != nil {
		return nil, err
	}

	cred, err := s.Credentials.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, appErrors.NewNoCredentials(userID)
	}

	if req.TestMode {
		return s.testSend(ctx, cred, req)
	}

	if req.QueueItemID != nil {
		return s.sendQueueItem(ctx, userID, *req.QueueItemID, req)
	}

	return s.directSend(ctx, userID, cred, req)
}

func (s *SendService) testSend(ctx context.Context, cred *model.SmtpCredential, req SendRequest) (*SendResult, error) {
	msg, err := mail.Compose(cred.FromEmail, cred.FromName, req.Recipient, req.Subject, req.Body)
	if err != nil {
		return nil, err
	}
	if err := s.Transport.Deliver(ctx, cred, cred.FromEmail, req.Recipient, msg); err != nil {
		s.logDeliveryError(err, req.Recipient, nil)
		return &SendResult{Success: false, Error: genericDeliveryError}, nil
	}
	return &SendResult{Success: true, Message: "test delivery succeeded"}, nil
}

func (s *SendService) sendQueueItem(ctx context.Context, userID, itemID int, req SendRequest) (*SendResult, error) {
	item, err := s.Items.GetByID(itemID)
	if err != nil {
		return nil, err
	}
	campaign, err := s.Campaigns.GetByID(item.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.UserID != userID {
		return nil, appErrors.NewForbidden("queue item %d does not belong to caller", itemID)
	}

	// Idempotence: a second invocation after a successful send is a no-op.
	if item.Status == model.QueueItemSent {
		return &SendResult{Success: true, Skipped: true, Message: "already sent"}, nil
	}

	ok, err := s.Items.UpdateStatusIf(item.ID, model.QueueItemPending, model.QueueItemSending, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.NewValidation("queue item %d is not pending", itemID)
	}

	switch s.DeliverQueueItem(ctx, campaign, item) {
	case model.QueueItemSent:
		return &SendResult{Success: true, Message: "delivered"}, nil
	case model.QueueItemSkipped:
		return &SendResult{Success: true, Skipped: true, Message: "duplicate suppressed"}, nil
	default:
		return &SendResult{Success: false, Error: genericDeliveryError}, nil
	}
}

func (s *SendService) directSend(ctx context.Context, userID int, cred *model.SmtpCredential, req SendRequest) (*SendResult, error) {
	// Attribution to a campaign is caller-supplied here, so it gets the
	// same ownership check as the queue path.
	if req.CampaignID != nil {
		campaign, err := s.Campaigns.GetByID(*req.CampaignID)
		if err != nil {
			return nil, err
		}
		if campaign.UserID != userID {
			return nil, appErrors.NewForbidden("campaign %d does not belong to caller", *req.CampaignID)
		}
	}

	exists, err := s.SentRecords.ExistsForUserRecipient(userID, req.Recipient)
	if err != nil {
		return nil, err
	}
	if exists {
		metrics.DeliveryOutcomes.WithLabelValues("skipped").Inc()
		return &SendResult{Success: true, Skipped: true, Message: "duplicate suppressed"}, nil
	}

	msg, err := mail.Compose(cred.FromEmail, cred.FromName, req.Recipient, req.Subject, req.Body)
	if err != nil {
		return nil, err
	}
	if err := s.Transport.Deliver(ctx, cred, cred.FromEmail, req.Recipient, msg); err != nil {
		s.logDeliveryError(err, req.Recipient, nil)
		metrics.DeliveryOutcomes.WithLabelValues("failed").Inc()
		return &SendResult{Success: false, Error: genericDeliveryError}, nil
	}

	rec := &model.SentRecord{
		UserID:        userID,
		CampaignID:    req.CampaignID,
		Recipient:     req.Recipient,
		Subject:       req.Subject,
		TrackingToken: uuid.NewString(),
	}
	if err := s.SentRecords.Insert(rec); err != nil {
		s.Log.Error("failed to record sent email", zap.Error(err), zap.String("recipient", req.Recipient))
	}
	metrics.DeliveryOutcomes.WithLabelValues("sent").Inc()
	return &SendResult{Success: true, Message: "delivered"}, nil
}

// DeliverQueueItem resolves one queue item already marked "sending":
// duplicate guard, compose, transport, persisted outcome. It never returns
// an error; every failure resolves the item to "failed" so the scheduler
// keeps ticking.
func (s *SendService) DeliverQueueItem(ctx context.Context, campaign *model.Campaign, item *model.QueueItem) model.QueueItemStatus {
	cred, err := s.Credentials.GetByUserID(campaign.UserID)
	if err == nil && cred == nil {
		err = appErrors.NewNoCredentials(campaign.UserID)
	}
	if err != nil {
		return s.failItem(item, "no SMTP settings configured", err)
	}

	exists, err := s.SentRecords.ExistsForUserRecipient(campaign.UserID, item.Recipient)
	if err != nil {
		return s.failItem(item, genericDeliveryError, err)
	}
	if exists {
		if _, err := s.Items.UpdateStatusIf(item.ID, model.QueueItemSending, model.QueueItemSkipped, ""); err != nil {
			s.Log.Error("failed to mark queue item skipped", zap.Error(err), zap.Int("item_id", item.ID))
		}
		metrics.DeliveryOutcomes.WithLabelValues("skipped").Inc()
		return model.QueueItemSkipped
	}

	body := RenderTemplate(campaign.BodyTemplate, map[string]string{"email": item.Recipient})
	msg, err := mail.Compose(cred.FromEmail, cred.FromName, item.Recipient, campaign.Subject, body)
	if err != nil {
		return s.failItem(item, err.Error(), err)
	}

	if err := s.Transport.Deliver(ctx, cred, cred.FromEmail, item.Recipient, msg); err != nil {
		s.logDeliveryError(err, item.Recipient, &campaign.ID)
		return s.failItem(item, genericDeliveryError, nil)
	}

	ok, err := s.Items.UpdateStatusIf(item.ID, model.QueueItemSending, model.QueueItemSent, "")
	if err != nil {
		s.Log.Error("failed to mark queue item sent", zap.Error(err), zap.Int("item_id", item.ID))
	}
	rec := &model.SentRecord{
		UserID:        campaign.UserID,
		CampaignID:    &campaign.ID,
		Recipient:     item.Recipient,
		Subject:       campaign.Subject,
		TrackingToken: uuid.NewString(),
	}
	if err := s.SentRecords.Insert(rec); err != nil {
		s.Log.Error("failed to record sent email", zap.Error(err), zap.Int("item_id", item.ID))
	}
	if ok {
		// Counter moves with the row transition so sent_count always equals
		// the number of sent items.
		if err := s.Campaigns.IncrementSentCount(campaign.ID); err != nil {
			s.Log.Error("failed to increment sent counter", zap.Error(err), zap.Int("campaign_id", campaign.ID))
		}
	}
	metrics.DeliveryOutcomes.WithLabelValues("sent").Inc()
	return model.QueueItemSent
}

func (s *SendService) failItem(item *model.QueueItem, rowMessage string, cause error) model.QueueItemStatus {
	if cause != nil {
		s.Log.Warn("delivery attempt failed",
			zap.Error(cause),
			zap.Int("item_id", item.ID),
			zap.String("recipient", item.Recipient),
		)
	}
	if _, err := s.Items.UpdateStatusIf(item.ID, model.QueueItemSending, model.QueueItemFailed, rowMessage); err != nil {
		s.Log.Error("failed to mark queue item failed", zap.Error(err), zap.Int("item_id", item.ID))
	}
	metrics.DeliveryOutcomes.WithLabelValues("failed").Inc()
	return model.QueueItemFailed
}

// logDeliveryError records the real protocol failure internally; callers
// only ever see the generic message.
func (s *SendService) logDeliveryError(err error, recipient string, campaignID *int) {
	fields := []zap.Field{zap.String("recipient", recipient)}
	if campaignID != nil {
		fields = append(fields, zap.Int("campaign_id", *campaignID))
	}
	var perr *smtp.ProtocolError
	if errors.As(err, &perr) {
		fields = append(fields,
			zap.String("kind", string(perr.Kind)),
			zap.String("step", perr.Step),
			zap.Int("code", perr.Code),
			zap.String("server_text", perr.ServerText),
		)
	} else {
		fields = append(fields, zap.Error(err))
	}
	s.Log.Warn("smtp delivery failed", fields...)
}
