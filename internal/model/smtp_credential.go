package model

import "fmt"

type Encryption string

const (
	EncryptionNone     Encryption = "none"
	EncryptionStartTLS Encryption = "starttls"
	EncryptionTLS      Encryption = "tls"
)

// SmtpCredential is the per-user mail server configuration. It is owned by
// the settings layer; the delivery engine only ever reads it, resolved from
// the authenticated user. It must never be accepted from request payloads.
type SmtpCredential struct {
	UserID     int        `db:"user_id" json:"user_id"`
	Host       string     `db:"host" json:"host"`
	Port       int        `db:"port" json:"port"`
	Username   string     `db:"username" json:"username"`
	Password   string     `db:"password" json:"-"`
	FromEmail  string     `db:"from_email" json:"from_email"`
	FromName   string     `db:"from_name" json:"from_name"`
	Encryption Encryption `db:"encryption" json:"encryption"`
}

// Addr returns the host:port dial target.
func (c *SmtpCredential) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
