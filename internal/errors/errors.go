// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrQueueItemNotFound reports a missing queue item.
type ErrQueueItemNotFound struct {
	ItemID int
}

func (e *ErrQueueItemNotFound) Error() string {
	return fmt.Sprintf("queue item with ID %d not found", e.ItemID)
}

func NewQueueItemNotFound(id int) error {
	return &ErrQueueItemNotFound{ItemID: id}
}

// ErrValidation covers malformed input rejected before any network or
// database activity. Its message is safe to surface verbatim to callers.
type ErrValidation struct {
	Msg string
}

func (e *ErrValidation) Error() string { return e.Msg }

func NewValidation(format string, args ...any) error {
	return &ErrValidation{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ErrValidation
	return errors.As(err, &ve)
}

// ErrForbidden means the caller does not own the campaign or queue item.
type ErrForbidden struct {
	Msg string
}

func (e *ErrForbidden) Error() string { return e.Msg }

func NewForbidden(format string, args ...any) error {
	return &ErrForbidden{Msg: fmt.Sprintf(format, args...)}
}

func IsForbidden(err error) bool {
	var fe *ErrForbidden
	return errors.As(err, &fe)
}

// ErrNoCredentials means the user has no stored SMTP settings.
type ErrNoCredentials struct {
	UserID int
}

func (e *ErrNoCredentials) Error() string {
	return fmt.Sprintf("no SMTP settings stored for user %d", e.UserID)
}

func NewNoCredentials(userID int) error {
	return &ErrNoCredentials{UserID: userID}
}

func IsNoCredentials(err error) bool {
	var ne *ErrNoCredentials
	return errors.As(err, &ne)
}

func IsNotFound(err error) bool {
	var ce *ErrCampaignNotFound
	var qe *ErrQueueItemNotFound
	return errors.As(err, &ce) || errors.As(err, &qe)
}
