package model

import "time"

const (
	AccountStatusActive   = "Active"
	AccountStatusInactive = "Inactive"
)

// MailAccount is a mailbox polled by the triage pipeline. Accounts are
// created and edited through the back-office admin UI; the pipeline reads
// them and never writes. AppCode is the IMAP app password, encrypted at
// rest when a secret key is configured.
type MailAccount struct {
	ID          int
	Email       string
	AppCode     string
	Status      string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}
