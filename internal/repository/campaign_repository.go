package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/mailcast/mailcast-backend/internal/errors"
	"github.com/mailcast/mailcast-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	CreateWithRecipients(c *model.Campaign, recipients []string) error
	GetByID(id int) (*model.Campaign, error)
	List(userID, offset, limit int, status string) ([]*model.Campaign, int, error)
	// UpdateStatusIf moves the campaign to the given status only if its
	// current status is one of from. Reports whether a row changed.
	UpdateStatusIf(id int, from []model.CampaignStatus, to model.CampaignStatus) (bool, error)
	IncrementSentCount(id int) error
	SetNextAttemptAt(id int, t *time.Time) error
}

type CampaignRepository struct {
	DB *sql.DB
}

// CreateWithRecipients inserts the campaign and one queue item per submitted
// recipient in a single transaction. The queue is never added to afterward.
func (r *CampaignRepository) CreateWithRecipients(c *model.Campaign, recipients []string) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.TotalRecipients = len(recipients)

	query := `
        INSERT INTO campaigns (user_id, name, subject, body_template, interval_seconds, total_recipients, sent_count, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
        RETURNING id
    `
	err = tx.QueryRow(query, c.UserID, c.Name, c.Subject, c.BodyTemplate, c.IntervalSeconds, c.TotalRecipients, c.Status, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
        INSERT INTO queue_items (campaign_id, recipient, status, created_at, updated_at)
        VALUES ($1, $2, 'pending', NOW(), NOW())
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, recipient := range recipients {
		if _, err := stmt.Exec(c.ID, recipient); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `
        SELECT id, user_id, name, subject, body_template, interval_seconds, total_recipients, sent_count, status, next_attempt_at, created_at, updated_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	err := r.DB.QueryRow(query, id).Scan(
		&c.ID, &c.UserID, &c.Name, &c.Subject, &c.BodyTemplate,
		&c.IntervalSeconds, &c.TotalRecipients, &c.SentCount,
		&c.Status, &c.NextAttemptAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) List(userID, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `
        SELECT id, user_id, name, subject, body_template, interval_seconds, total_recipients, sent_count, status, next_attempt_at, created_at, updated_at
        FROM campaigns WHERE user_id=$1
    `
	args := []interface{}{userID}
	argPos := 2

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Name, &c.Subject, &c.BodyTemplate,
			&c.IntervalSeconds, &c.TotalRecipients, &c.SentCount,
			&c.Status, &c.NextAttemptAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE user_id=$1`
	countArgs := []interface{}{userID}
	if status != "" {
		countQuery += " AND status=$2"
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) UpdateStatusIf(id int, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status = ANY($3)`
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	res, err := r.DB.Exec(query, to, id, pq.Array(states))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CampaignRepository) IncrementSentCount(id int) error {
	query := `UPDATE campaigns SET sent_count=sent_count+1, updated_at=NOW() WHERE id=$1 AND sent_count < total_recipients`
	_, err := r.DB.Exec(query, id)
	return err
}

func (r *CampaignRepository) SetNextAttemptAt(id int, t *time.Time) error {
	query := `UPDATE campaigns SET next_attempt_at=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, t, id)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
