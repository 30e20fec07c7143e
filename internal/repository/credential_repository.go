package repository

import (
	"database/sql"

	"github.com/mailcast/mailcast-backend/internal/model"
)

// CredentialRepositoryInterface reads per-user SMTP settings. The delivery
// engine never writes credentials; the settings layer owns them.
type CredentialRepositoryInterface interface {
	GetByUserID(userID int) (*model.SmtpCredential, error)
}

type CredentialRepository struct {
	DB *sql.DB
}

// GetByUserID returns nil, nil when the user has no stored settings.
func (r *CredentialRepository) GetByUserID(userID int) (*model.SmtpCredential, error) {
	query := `
        SELECT user_id, host, port, username, password, from_email, from_name, encryption
        FROM smtp_credentials
        WHERE user_id=$1
    `
	var c model.SmtpCredential
	err := r.DB.QueryRow(query, userID).Scan(
		&c.UserID, &c.Host, &c.Port, &c.Username, &c.Password,
		&c.FromEmail, &c.FromName, &c.Encryption,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

var _ CredentialRepositoryInterface = (*CredentialRepository)(nil)
