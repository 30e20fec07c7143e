package repository

import (
	"database/sql"
	"time"

	"github.com/mailcast/mailcast-backend/internal/model"
)

type SentRecordRepositoryInterface interface {
	Insert(rec *model.SentRecord) error
	// ExistsForUserRecipient reports whether the user already has a
	// successful send recorded for the recipient, across all campaigns.
	// This is the duplicate-suppression lookup.
	ExistsForUserRecipient(userID int, recipient string) (bool, error)
	// MarkOpened stamps opened_at for the token, at most once. Reports
	// whether this call was the first open.
	MarkOpened(token string) (bool, error)
	MarkClicked(token string) (bool, error)
}

type SentRecordRepository struct {
	DB *sql.DB
}

func (r *SentRecordRepository) Insert(rec *model.SentRecord) error {
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}
	query := `
        INSERT INTO sent_records (user_id, campaign_id, recipient, subject, tracking_token, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	return r.DB.QueryRow(query, rec.UserID, rec.CampaignID, rec.Recipient, rec.Subject, rec.TrackingToken, rec.SentAt).Scan(&rec.ID)
}

func (r *SentRecordRepository) ExistsForUserRecipient(userID int, recipient string) (bool, error) {
	query := `SELECT 1 FROM sent_records WHERE user_id=$1 AND recipient=$2 LIMIT 1`
	var tmp int
	err := r.DB.QueryRow(query, userID, recipient).Scan(&tmp)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *SentRecordRepository) MarkOpened(token string) (bool, error) {
	query := `UPDATE sent_records SET opened_at=NOW() WHERE tracking_token=$1 AND opened_at IS NULL`
	res, err := r.DB.Exec(query, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SentRecordRepository) MarkClicked(token string) (bool, error) {
	query := `UPDATE sent_records SET clicked_at=NOW() WHERE tracking_token=$1 AND clicked_at IS NULL`
	res, err := r.DB.Exec(query, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

var _ SentRecordRepositoryInterface = (*SentRecordRepository)(nil)
