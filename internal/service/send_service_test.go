package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/mailcast/mailcast-backend/internal/errors"
	"github.com/mailcast/mailcast-backend/internal/model"
	"github.com/mailcast/mailcast-backend/internal/queue"
	"github.com/mailcast/mailcast-backend/internal/service"
	"github.com/mailcast/mailcast-backend/internal/smtp"
)

// Mock repositories

type mockCampaignRepo struct {
	campaigns   map[int]*model.Campaign
	recipients  map[int][]string
	listResult  []*model.Campaign
	listTotal   int
	lastOffset  int
	lastLimit   int
	incremented []int
	nextAttempt []*time.Time
	nextID      int
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{
		campaigns:  map[int]*model.Campaign{},
		recipients: map[int][]string{},
		nextID:     1,
	}
}

func (m *mockCampaignRepo) CreateWithRecipients(c *model.Campaign, recipients []string) error {
	c.ID = m.nextID
	m.nextID++
	c.TotalRecipients = len(recipients)
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	m.campaigns[c.ID] = c
	m.recipients[c.ID] = recipients
	return nil
}

func (m *mockCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (m *mockCampaignRepo) List(userID, offset, limit int, status string) ([]*model.Campaign, int, error) {
	m.lastOffset = offset
	m.lastLimit = limit
	return m.listResult, m.listTotal, nil
}

func (m *mockCampaignRepo) UpdateStatusIf(id int, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCampaignRepo) IncrementSentCount(id int) error {
	m.incremented = append(m.incremented, id)
	if c, ok := m.campaigns[id]; ok && c.SentCount < c.TotalRecipients {
		c.SentCount++
	}
	return nil
}

func (m *mockCampaignRepo) SetNextAttemptAt(id int, t *time.Time) error {
	m.nextAttempt = append(m.nextAttempt, t)
	return nil
}

type mockItemRepo struct {
	items map[int]*model.QueueItem
	stats map[string]int
}

func newMockItemRepo() *mockItemRepo {
	return &mockItemRepo{items: map[int]*model.QueueItem{}}
}

func (m *mockItemRepo) GetByID(id int) (*model.QueueItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, appErrors.NewQueueItemNotFound(id)
	}
	copied := *item
	return &copied, nil
}

func (m *mockItemRepo) ListByCampaign(campaignID int) ([]*model.QueueItem, error) {
	var out []*model.QueueItem
	for _, item := range m.items {
		if item.CampaignID == campaignID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockItemRepo) NextPending(campaignID int) (*model.QueueItem, error) {
	var best *model.QueueItem
	for _, item := range m.items {
		if item.CampaignID == campaignID && item.Status == model.QueueItemPending {
			if best == nil || item.ID < best.ID {
				best = item
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

func (m *mockItemRepo) UpdateStatusIf(id int, from, to model.QueueItemStatus, lastError string) (bool, error) {
	item, ok := m.items[id]
	if !ok || item.Status != from {
		return false, nil
	}
	item.Status = to
	item.LastError = lastError
	return true, nil
}

func (m *mockItemRepo) ReconcileSending(campaignID int) (int64, error) {
	var n int64
	for _, item := range m.items {
		if item.CampaignID == campaignID && item.Status == model.QueueItemSending {
			item.Status = model.QueueItemFailed
			n++
		}
	}
	return n, nil
}

func (m *mockItemRepo) Stats(campaignID int) (map[string]int, error) {
	if m.stats != nil {
		return m.stats, nil
	}
	stats := map[string]int{"total": 0, "pending": 0, "sending": 0, "sent": 0, "skipped": 0, "failed": 0}
	for _, item := range m.items {
		if item.CampaignID == campaignID {
			stats[string(item.Status)]++
			stats["total"]++
		}
	}
	return stats, nil
}

type mockSentRepo struct {
	records []*model.SentRecord
}

func (m *mockSentRepo) Insert(rec *model.SentRecord) error {
	rec.ID = len(m.records) + 1
	m.records = append(m.records, rec)
	return nil
}

func (m *mockSentRepo) ExistsForUserRecipient(userID int, recipient string) (bool, error) {
	for _, rec := range m.records {
		if rec.UserID == userID && rec.Recipient == recipient {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSentRepo) MarkOpened(token string) (bool, error)  { return false, nil }
func (m *mockSentRepo) MarkClicked(token string) (bool, error) { return false, nil }

type mockCredRepo struct {
	cred *model.SmtpCredential
}

func (m *mockCredRepo) GetByUserID(userID int) (*model.SmtpCredential, error) {
	return m.cred, nil
}

type delivery struct {
	from, to string
	msg      []byte
}

type mockTransport struct {
	deliveries []delivery
	err        error
}

func (m *mockTransport) Deliver(ctx context.Context, cred *model.SmtpCredential, from, to string, msg []byte) error {
	m.deliveries = append(m.deliveries, delivery{from: from, to: to, msg: msg})
	return m.err
}

type mockPublisher struct {
	jobs []queue.RunJob
	err  error
}

func (m *mockPublisher) PublishRun(job queue.RunJob) error {
	m.jobs = append(m.jobs, job)
	return m.err
}

func testCred() *model.SmtpCredential {
	return &model.SmtpCredential{
		UserID:     7,
		Host:       "mail.example.com",
		Port:       587,
		Username:   "user",
		Password:   "secret",
		FromEmail:  "from@example.com",
		FromName:   "Mailcast",
		Encryption: model.EncryptionStartTLS,
	}
}

type sendFixture struct {
	campaigns *mockCampaignRepo
	items     *mockItemRepo
	sent      *mockSentRepo
	creds     *mockCredRepo
	transport *mockTransport
	svc       *service.SendService
}

func newSendFixture() *sendFixture {
	f := &sendFixture{
		campaigns: newMockCampaignRepo(),
		items:     newMockItemRepo(),
		sent:      &mockSentRepo{},
		creds:     &mockCredRepo{cred: testCred()},
		transport: &mockTransport{},
	}
	f.svc = &service.SendService{
		Campaigns:   f.campaigns,
		Items:       f.items,
		SentRecords: f.sent,
		Credentials: f.creds,
		Transport:   f.transport,
		Log:         zap.NewNop(),
	}
	return f
}

func TestSendRejectsInvalidRecipient(t *testing.T) {
	f := newSendFixture()
	_, err := f.svc.Send(context.Background(), 7, service.SendRequest{Recipient: "not-an-address", Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
	assert.Empty(t, f.transport.deliveries)
}

func TestSendWithoutStoredCredentials(t *testing.T) {
	f := newSendFixture()
	f.creds.cred = nil
	_, err := f.svc.Send(context.Background(), 7, service.SendRequest{Recipient: "to@example.com", Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.True(t, appErrors.IsNoCredentials(err))
}

func TestDirectSendDelivers(t *testing.T) {
	f := newSendFixture()
	result, err := f.svc.Send(context.Background(), 7, service.SendRequest{Recipient: "to@example.com", Subject: "s", Body: "b"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Skipped)

	require.Len(t, f.transport.deliveries, 1)
	assert.Equal(t, "from@example.com", f.transport.deliveries[0].from)
	assert.Equal(t, "to@example.com", f.transport.deliveries[0].to)

	require.Len(t, f.sent.records, 1)
	assert.Equal(t, 7, f.sent.records[0].UserID)
	assert.Nil(t, f.sent.records[0].CampaignID)
	assert.NotEmpty(t, f.sent.records[0].TrackingToken)
}

func TestDirectSendSuppressesDuplicate(t *testing.T) {
	f := newSendFixture()
	f.sent.records = append(f.sent.records, &model.SentRecord{UserID: 7, Recipient: "to@example.com"})

	result, err := f.svc.Send(context.Background(), 7, service.SendRequest{Recipient: "to@example.com", Subject: "s", Body: "b"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Skipped)
	assert.Empty(t, f.transport.deliveries)
	assert.Len(t, f.sent.records, 1)
}

func TestDirectSendTransportFailure(t *testing.T) {
	f := newSendFixture()
	f.transport.err = &smtp.ProtocolError{Kind: smtp.KindProtocol, Step: "rcpt", Code: 550, ServerText: "no such user"}

	result, err := f.svc.Send(context.Background(), 7, service.SendRequest{Recipient: "to@example.com", Subject: "s", Body: "b"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	// The server's text stays internal.
	assert.Equal(t, "delivery failed", result.Error)
	assert.Empty(t, f.sent.records)
}

func TestDirectSendCampaignAttributionIsOwnerOnly(t *testing.T) {
	f := newSendFixture()
	other := &model.Campaign{UserID: 99, Name: "not yours", Subject: "s", BodyTemplate: "b"}
	f.campaigns.CreateWithRecipients(other, []string{"x@example.com"})

	_, err := f.svc.Send(context.Background(), 7, service.SendRequest{
		Recipient: "to@example.com", Subject: "s", Body: "b", CampaignID: &other.ID,
	})
	require.Error(t, err)
	assert.True(t, appErrors.IsForbidden(err))
	assert.Empty(t, f.transport.deliveries)
	assert.Empty(t, f.sent.records)

	mine := &model.Campaign{UserID: 7, Name: "mine", Subject: "s", BodyTemplate: "b"}
	f.campaigns.CreateWithRecipients(mine, []string{"x@example.com"})

	result, err := f.svc.Send(context.Background(), 7, service.SendRequest{
		Recipient: "to@example.com", Subject: "s", Body: "b", CampaignID: &mine.ID,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, f.sent.records, 1)
	require.NotNil(t, f.sent.records[0].CampaignID)
	assert.Equal(t, mine.ID, *f.sent.records[0].CampaignID)
}

func TestTestModeDoesNoBookkeeping(t *testing.T) {
	f := newSendFixture()
	// Duplicate suppression does not apply to test sends.
	f.sent.records = append(f.sent.records, &model.SentRecord{UserID: 7, Recipient: "to@example.com"})

	result, err := f.svc.Send(context.Background(), 7, service.SendRequest{Recipient: "to@example.com", Subject: "s", Body: "b", TestMode: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, f.transport.deliveries, 1)
	assert.Len(t, f.sent.records, 1)
}

func (f *sendFixture) seedCampaignItem(itemStatus model.QueueItemStatus) (*model.Campaign, *model.QueueItem) {
	campaign := &model.Campaign{UserID: 7, Name: "c", Subject: "s", BodyTemplate: "hi {email}"}
	f.campaigns.CreateWithRecipients(campaign, []string{"to@example.com"})
	item := &model.QueueItem{ID: 1, CampaignID: campaign.ID, Recipient: "to@example.com", Status: itemStatus}
	f.items.items[item.ID] = item
	return campaign, item
}

func TestQueueItemSendIsIdempotent(t *testing.T) {
	f := newSendFixture()
	_, item := f.seedCampaignItem(model.QueueItemSent)

	result, err := f.svc.Send(context.Background(), 7, service.SendRequest{
		Recipient: "to@example.com", Subject: "s", Body: "b", QueueItemID: &item.ID,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Skipped)
	assert.Equal(t, "already sent", result.Message)
	assert.Empty(t, f.transport.deliveries)
}

func TestQueueItemSendForbiddenForOtherUser(t *testing.T) {
	f := newSendFixture()
	_, item := f.seedCampaignItem(model.QueueItemPending)

	_, err := f.svc.Send(context.Background(), 99, service.SendRequest{
		Recipient: "to@example.com", Subject: "s", Body: "b", QueueItemID: &item.ID,
	})
	require.Error(t, err)
	assert.True(t, appErrors.IsForbidden(err))
	assert.Empty(t, f.transport.deliveries)
}

func TestQueueItemSendRequiresPending(t *testing.T) {
	f := newSendFixture()
	_, item := f.seedCampaignItem(model.QueueItemFailed)

	_, err := f.svc.Send(context.Background(), 7, service.SendRequest{
		Recipient: "to@example.com", Subject: "s", Body: "b", QueueItemID: &item.ID,
	})
	require.Error(t, err)
	assert.True(t, appErrors.IsValidation(err))
}

func TestQueueItemSendDelivers(t *testing.T) {
	f := newSendFixture()
	campaign, item := f.seedCampaignItem(model.QueueItemPending)

	result, err := f.svc.Send(context.Background(), 7, service.SendRequest{
		Recipient: "to@example.com", Subject: "s", Body: "b", QueueItemID: &item.ID,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	assert.Equal(t, model.QueueItemSent, f.items.items[item.ID].Status)
	assert.Equal(t, []int{campaign.ID}, f.campaigns.incremented)
	require.Len(t, f.sent.records, 1)
	require.NotNil(t, f.sent.records[0].CampaignID)
	assert.Equal(t, campaign.ID, *f.sent.records[0].CampaignID)
}

func TestDeliverQueueItemRendersTemplate(t *testing.T) {
	f := newSendFixture()
	campaign, item := f.seedCampaignItem(model.QueueItemSending)

	status := f.svc.DeliverQueueItem(context.Background(), campaign, item)
	assert.Equal(t, model.QueueItemSent, status)
	require.Len(t, f.transport.deliveries, 1)
	assert.Contains(t, string(f.transport.deliveries[0].msg), "hi to@example.com")
}

func TestDeliverQueueItemSkipsDuplicate(t *testing.T) {
	f := newSendFixture()
	campaign, item := f.seedCampaignItem(model.QueueItemSending)
	f.sent.records = append(f.sent.records, &model.SentRecord{UserID: 7, Recipient: "to@example.com"})

	status := f.svc.DeliverQueueItem(context.Background(), campaign, item)
	assert.Equal(t, model.QueueItemSkipped, status)
	assert.Equal(t, model.QueueItemSkipped, f.items.items[item.ID].Status)
	assert.Empty(t, f.transport.deliveries)
	assert.Empty(t, f.campaigns.incremented)
}

func TestDeliverQueueItemTransportFailure(t *testing.T) {
	f := newSendFixture()
	campaign, item := f.seedCampaignItem(model.QueueItemSending)
	f.transport.err = &smtp.ProtocolError{Kind: smtp.KindNetwork, Step: "dial", ServerText: "connection refused"}

	status := f.svc.DeliverQueueItem(context.Background(), campaign, item)
	assert.Equal(t, model.QueueItemFailed, status)
	assert.Equal(t, model.QueueItemFailed, f.items.items[item.ID].Status)
	// Row message is generic; the dial error stays in the logs.
	assert.Equal(t, "delivery failed", f.items.items[item.ID].LastError)
	assert.Empty(t, f.sent.records)
	assert.Empty(t, f.campaigns.incremented)
}

func TestDeliverQueueItemWithoutCredentials(t *testing.T) {
	f := newSendFixture()
	campaign, item := f.seedCampaignItem(model.QueueItemSending)
	f.creds.cred = nil

	status := f.svc.DeliverQueueItem(context.Background(), campaign, item)
	assert.Equal(t, model.QueueItemFailed, status)
	assert.Equal(t, "no SMTP settings configured", f.items.items[item.ID].LastError)
}

func TestDuplicateRecipientWithinCampaign(t *testing.T) {
	f := newSendFixture()
	campaign := &model.Campaign{UserID: 7, Name: "c", Subject: "s", BodyTemplate: "hello"}
	f.campaigns.CreateWithRecipients(campaign, []string{"a@example.com", "b@example.com", "a@example.com"})
	recipients := []string{"a@example.com", "b@example.com", "a@example.com"}
	for i, r := range recipients {
		f.items.items[i+1] = &model.QueueItem{ID: i + 1, CampaignID: campaign.ID, Recipient: r, Status: model.QueueItemSending}
	}

	var statuses []model.QueueItemStatus
	for i := range recipients {
		statuses = append(statuses, f.svc.DeliverQueueItem(context.Background(), campaign, f.items.items[i+1]))
	}

	// The repeated address delivers once; the later occurrence is skipped.
	assert.Equal(t, []model.QueueItemStatus{
		model.QueueItemSent,
		model.QueueItemSent,
		model.QueueItemSkipped,
	}, statuses)
	assert.Len(t, f.sent.records, 2)
	assert.Len(t, f.transport.deliveries, 2)
}
