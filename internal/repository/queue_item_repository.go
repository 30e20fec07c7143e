package repository

import (
	"database/sql"

	appErrors "github.com/mailcast/mailcast-backend/internal/errors"
	"github.com/mailcast/mailcast-backend/internal/model"
)

type QueueItemRepositoryInterface interface {
	GetByID(id int) (*model.QueueItem, error)
	ListByCampaign(campaignID int) ([]*model.QueueItem, error)
	// NextPending returns the oldest pending item of the campaign, nil when
	// the queue is drained. FIFO by creation order.
	NextPending(campaignID int) (*model.QueueItem, error)
	// UpdateStatusIf applies the transition only if the item is still in the
	// expected prior status. Reports whether a row changed.
	UpdateStatusIf(id int, from, to model.QueueItemStatus, lastError string) (bool, error)
	// ReconcileSending resolves items left in "sending" by an interrupted
	// run. The outcome of those deliveries is unknown, so they become
	// "failed" rather than re-pending, which could double-send.
	ReconcileSending(campaignID int) (int64, error)
	Stats(campaignID int) (map[string]int, error)
}

type QueueItemRepository struct {
	DB *sql.DB
}

const queueItemColumns = `id, campaign_id, recipient, status, last_error, created_at, updated_at`

func (r *QueueItemRepository) GetByID(id int) (*model.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items WHERE id=$1`
	item, err := r.scanOne(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewQueueItemNotFound(id)
		}
		return nil, err
	}
	return item, nil
}

func (r *QueueItemRepository) ListByCampaign(campaignID int) ([]*model.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items WHERE campaign_id=$1 ORDER BY id`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*model.QueueItem{}
	for rows.Next() {
		var item model.QueueItem
		if err := rows.Scan(
			&item.ID, &item.CampaignID, &item.Recipient, &item.Status,
			&item.LastError, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (r *QueueItemRepository) NextPending(campaignID int) (*model.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items WHERE campaign_id=$1 AND status='pending' ORDER BY id LIMIT 1`
	item, err := r.scanOne(r.DB.QueryRow(query, campaignID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (r *QueueItemRepository) UpdateStatusIf(id int, from, to model.QueueItemStatus, lastError string) (bool, error) {
	query := `UPDATE queue_items SET status=$1, last_error=$2, updated_at=NOW() WHERE id=$3 AND status=$4`
	res, err := r.DB.Exec(query, to, lastError, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *QueueItemRepository) ReconcileSending(campaignID int) (int64, error) {
	query := `UPDATE queue_items SET status='failed', last_error='interrupted during delivery', updated_at=NOW() WHERE campaign_id=$1 AND status='sending'`
	res, err := r.DB.Exec(query, campaignID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *QueueItemRepository) Stats(campaignID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM queue_items WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"total": 0, "pending": 0, "sending": 0, "sent": 0, "skipped": 0, "failed": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		if _, ok := stats[status]; ok {
			stats[status] = count
		}
		stats["total"] += count
	}
	return stats, rows.Err()
}

func (r *QueueItemRepository) scanOne(row *sql.Row) (*model.QueueItem, error) {
	var item model.QueueItem
	err := row.Scan(
		&item.ID, &item.CampaignID, &item.Recipient, &item.Status,
		&item.LastError, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

var _ QueueItemRepositoryInterface = (*QueueItemRepository)(nil)
