package model

import "time"

// Per-message outcomes of a polling cycle.
const (
	OutcomePersistedInquiry = "persisted_inquiry"
	OutcomePersistedOther   = "persisted_other"
	OutcomeDuplicate        = "duplicate"
	OutcomeFailed           = "failed"
)

type MessageOutcome struct {
	MessageID string `json:"message_id"`
	Account   string `json:"account"`
	Subject   string `json:"subject"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
}

type AccountFailure struct {
	Account string `json:"account"`
	Reason  string `json:"reason"`
}

// CycleReport is the terminal state of one polling cycle: one entry per
// message seen, one entry per account that could not be fetched. A failed
// message produced no row and will be picked up again next cycle.
type CycleReport struct {
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	Accounts        int              `json:"accounts"`
	Messages        []MessageOutcome `json:"messages"`
	AccountFailures []AccountFailure `json:"account_failures"`
}
