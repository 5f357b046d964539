package model

import "time"

// InboundMessage is a fetched message normalized for triage. It is
// transient: once classified and written (or skipped as a duplicate) it is
// discarded. MessageID is the Message-ID header with angle brackets
// stripped.
type InboundMessage struct {
	MessageID   string
	Account     string
	SenderEmail string
	SenderName  string
	Subject     string
	BodyText    string
	ReceivedAt  time.Time
}

// SalesInquiry is the destination row for messages classified as sales
// leads. Inserted exactly once per message ID; AssignedTo is set later
// through the back-office CRUD, never by the pipeline.
type SalesInquiry struct {
	ID            int
	MessageID     string
	SenderEmail   string
	SenderName    string
	CompanyName   *string
	MobileNumber  *string
	EmailSubject  string
	EmailSummary  string
	ExtractedJSON string
	EmailRaw      *string
	EmailDate     time.Time
	InquiryType   string
	InquiryReason *string
	AssignedTo    *int
	CreatedAt     time.Time
}

// OtherMessage is the destination row for everything else.
type OtherMessage struct {
	ID            int
	MessageID     string
	SenderEmail   string
	SenderName    string
	EmailSubject  string
	EmailSummary  string
	ExtractedJSON string
	EmailRaw      *string
	EmailDate     time.Time
	InquiryType   string
	CreatedAt     time.Time
}
