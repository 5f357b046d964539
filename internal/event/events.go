package event

import "time"

// Routing keys for events published after a successful persist. The
// back-office notification service consumes these.
const (
	InquiryCreated    = "inquiry.created"
	MessageClassified = "message.classified"
)

type InquiryCreatedPayload struct {
	MessageID   string    `json:"message_id"`
	SenderEmail string    `json:"sender_email"`
	SenderName  string    `json:"sender_name"`
	Subject     string    `json:"subject"`
	Summary     string    `json:"summary"`
	InquiryType string    `json:"inquiry_type"`
	EmailDate   time.Time `json:"email_date"`
}

type MessageClassifiedPayload struct {
	MessageID   string    `json:"message_id"`
	SenderEmail string    `json:"sender_email"`
	Subject     string    `json:"subject"`
	InquiryType string    `json:"inquiry_type"`
	EmailDate   time.Time `json:"email_date"`
}
