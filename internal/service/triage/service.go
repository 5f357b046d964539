package triage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/classifier"
	"mailtriage/internal/event"
	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/util"
)

type AccountSource interface {
	ListActive(ctx context.Context) ([]model.MailAccount, error)
}

type MailFetcher interface {
	FetchRecent(ctx context.Context, account, appCode string) ([]model.InboundMessage, error)
}

type Classifier interface {
	Classify(ctx context.Context, subject, body string) (*classifier.Result, error)
}

type InquiryStore interface {
	ExistingMessageIDs(ctx context.Context, ids []string) ([]string, error)
	Insert(ctx context.Context, inq *model.SalesInquiry) (int, error)
}

type OtherMessageStore interface {
	ExistingMessageIDs(ctx context.Context, ids []string) ([]string, error)
	Insert(ctx context.Context, msg *model.OtherMessage) (int, error)
}

// Claimer guards against two overlapping cycles persisting the same
// message; the table constraint backs it up.
type Claimer interface {
	Claim(ctx context.Context, messageID string) bool
	Release(ctx context.Context, messageID string)
}

type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// Service runs one polling cycle end to end: fetch from every active
// account concurrently, de-duplicate against both destination tables,
// classify the survivors concurrently, and persist each verdict into
// exactly one table. A cycle never re-enters itself; the HTTP trigger or
// the interval poller starts the next one.
type Service struct {
	accounts   AccountSource
	fetcher    MailFetcher
	classifier Classifier
	inquiries  InquiryStore
	others     OtherMessageStore
	claimer    Claimer
	publisher  EventPublisher
	secrets    *util.SecretCodec
	logger     *zap.Logger
}

func NewService(
	accounts AccountSource,
	fetcher MailFetcher,
	cls Classifier,
	inquiries InquiryStore,
	others OtherMessageStore,
	claimer Claimer,
	publisher EventPublisher,
	secrets *util.SecretCodec,
	logger *zap.Logger,
) *Service {
	return &Service{
		accounts:   accounts,
		fetcher:    fetcher,
		classifier: cls,
		inquiries:  inquiries,
		others:     others,
		claimer:    claimer,
		publisher:  publisher,
		secrets:    secrets,
		logger:     logger,
	}
}

// RunCycle executes one polling cycle and returns its report. Only errors
// that prevent the cycle from running at all (account list or dedup lookup
// unavailable) are returned; everything per-account or per-message is
// reported as data.
func (s *Service) RunCycle(ctx context.Context) (*model.CycleReport, error) {
	report, err := s.runCycle(ctx)
	metrics.RecordCycle(err == nil)
	return report, err
}

func (s *Service) runCycle(ctx context.Context) (*model.CycleReport, error) {
	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mail accounts: %w", err)
	}

	report := &model.CycleReport{
		StartedAt: time.Now(),
		Accounts:  len(accounts),
		Messages:  []model.MessageOutcome{},
	}

	s.logger.Info("Starting polling cycle", zap.Int("accounts", len(accounts)))

	candidates := s.fetchAll(ctx, accounts, report)

	fresh, err := s.filterExisting(ctx, candidates, report)
	if err != nil {
		return nil, err
	}

	results := s.classifyAll(ctx, fresh)

	for i, msg := range fresh {
		outcome := s.persist(ctx, msg, results[i].res, results[i].err)
		report.Messages = append(report.Messages, outcome)
		metrics.RecordMessage(outcome.Outcome)
	}

	report.FinishedAt = time.Now()
	s.logger.Info("Polling cycle completed",
		zap.Int("messages", len(report.Messages)),
		zap.Int("account_failures", len(report.AccountFailures)),
	)

	return report, nil
}

// fetchAll fans out one fetch per account and rejoins. One account's
// failure is recorded and never blocks the others. Messages fetched twice
// within the cycle (shared mailbox forwarding) collapse to one candidate.
func (s *Service) fetchAll(ctx context.Context, accounts []model.MailAccount, report *model.CycleReport) []model.InboundMessage {
	type fetchResult struct {
		account string
		msgs    []model.InboundMessage
		err     error
	}

	results := make([]fetchResult, len(accounts))

	var wg sync.WaitGroup
	for i, acct := range accounts {
		wg.Add(1)
		go func(i int, acct model.MailAccount) {
			defer wg.Done()

			appCode, err := s.appCode(acct)
			if err != nil {
				results[i] = fetchResult{account: acct.Email, err: err}
				return
			}

			msgs, err := s.fetcher.FetchRecent(ctx, acct.Email, appCode)
			results[i] = fetchResult{account: acct.Email, msgs: msgs, err: err}
		}(i, acct)
	}
	wg.Wait()

	var candidates []model.InboundMessage
	seen := make(map[string]struct{})

	for _, r := range results {
		if r.err != nil {
			s.logger.Warn("Mailbox fetch failed, skipping account",
				zap.String("account", r.account),
				zap.Error(r.err),
			)
			metrics.AccountFetchFailures.Inc()
			report.AccountFailures = append(report.AccountFailures, model.AccountFailure{
				Account: r.account,
				Reason:  r.err.Error(),
			})
			continue
		}

		for _, m := range r.msgs {
			if _, dup := seen[m.MessageID]; dup {
				report.Messages = append(report.Messages, model.MessageOutcome{
					MessageID: m.MessageID,
					Account:   m.Account,
					Subject:   m.Subject,
					Outcome:   model.OutcomeDuplicate,
				})
				metrics.RecordMessage(model.OutcomeDuplicate)
				continue
			}
			seen[m.MessageID] = struct{}{}
			candidates = append(candidates, m)
		}
	}

	return candidates
}

// filterExisting removes candidates already persisted in either destination
// table. One batched lookup per table per cycle.
func (s *Service) filterExisting(ctx context.Context, candidates []model.InboundMessage, report *model.CycleReport) ([]model.InboundMessage, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, m := range candidates {
		ids[i] = m.MessageID
	}

	existing := make(map[string]struct{})

	inquiryIDs, err := s.inquiries.ExistingMessageIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing inquiries: %w", err)
	}
	for _, id := range inquiryIDs {
		existing[id] = struct{}{}
	}

	otherIDs, err := s.others.ExistingMessageIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing messages: %w", err)
	}
	for _, id := range otherIDs {
		existing[id] = struct{}{}
	}

	var fresh []model.InboundMessage
	for _, m := range candidates {
		if _, dup := existing[m.MessageID]; dup {
			report.Messages = append(report.Messages, model.MessageOutcome{
				MessageID: m.MessageID,
				Account:   m.Account,
				Subject:   m.Subject,
				Outcome:   model.OutcomeDuplicate,
			})
			metrics.RecordMessage(model.OutcomeDuplicate)
			continue
		}
		fresh = append(fresh, m)
	}

	return fresh, nil
}

type classifyResult struct {
	res *classifier.Result
	err error
}

// classifyAll fans out one classification call per message. Calls are
// independent: one message's timeout never cancels its siblings.
func (s *Service) classifyAll(ctx context.Context, msgs []model.InboundMessage) []classifyResult {
	results := make([]classifyResult, len(msgs))

	var wg sync.WaitGroup
	for i, m := range msgs {
		wg.Add(1)
		go func(i int, m model.InboundMessage) {
			defer wg.Done()
			res, err := s.classifier.Classify(ctx, m.Subject, m.BodyText)
			results[i] = classifyResult{res: res, err: err}
		}(i, m)
	}
	wg.Wait()

	return results
}

// persist writes one classified message into exactly one destination table
// and reports the outcome. Failures release the Redis claim so the message
// stays eligible for the next cycle.
func (s *Service) persist(ctx context.Context, m model.InboundMessage, res *classifier.Result, classifyErr error) model.MessageOutcome {
	outcome := model.MessageOutcome{
		MessageID: m.MessageID,
		Account:   m.Account,
		Subject:   m.Subject,
	}

	if classifyErr != nil {
		_, errType := util.IsRetryableError(classifyErr)
		s.logger.Warn("Classification failed",
			zap.String("message_id", m.MessageID),
			zap.String("error_type", errType),
			zap.Error(classifyErr),
		)
		outcome.Outcome = model.OutcomeFailed
		outcome.Reason = classifyErr.Error()
		return outcome
	}

	if !s.claimer.Claim(ctx, m.MessageID) {
		outcome.Outcome = model.OutcomeDuplicate
		return outcome
	}

	var insertErr error
	if res.Verdict.IsInquiry {
		_, insertErr = s.inquiries.Insert(ctx, buildInquiry(m, res))
		if insertErr == nil {
			outcome.Outcome = model.OutcomePersistedInquiry
			s.publish(event.InquiryCreated, event.InquiryCreatedPayload{
				MessageID:   m.MessageID,
				SenderEmail: m.SenderEmail,
				SenderName:  m.SenderName,
				Subject:     m.Subject,
				Summary:     res.Verdict.Summary,
				InquiryType: res.Verdict.InquiryType,
				EmailDate:   m.ReceivedAt,
			})
		}
	} else {
		_, insertErr = s.others.Insert(ctx, buildOtherMessage(m, res))
		if insertErr == nil {
			outcome.Outcome = model.OutcomePersistedOther
			s.publish(event.MessageClassified, event.MessageClassifiedPayload{
				MessageID:   m.MessageID,
				SenderEmail: m.SenderEmail,
				Subject:     m.Subject,
				InquiryType: res.Verdict.InquiryType,
				EmailDate:   m.ReceivedAt,
			})
		}
	}

	if insertErr != nil {
		s.claimer.Release(ctx, m.MessageID)
		s.logger.Error("Failed to persist classified message",
			zap.String("message_id", m.MessageID),
			zap.Error(insertErr),
		)
		outcome.Outcome = model.OutcomeFailed
		outcome.Reason = insertErr.Error()
	}

	return outcome
}

func (s *Service) publish(routingKey string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(routingKey, payload); err != nil {
		// Notification loss is acceptable; the row is already persisted.
		s.logger.Warn("Failed to publish event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}

func (s *Service) appCode(acct model.MailAccount) (string, error) {
	if s.secrets == nil {
		return acct.AppCode, nil
	}
	code, err := s.secrets.Decrypt(acct.AppCode)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt app code for %s: %w", acct.Email, err)
	}
	return code, nil
}

func buildInquiry(m model.InboundMessage, res *classifier.Result) *model.SalesInquiry {
	senderName := res.Verdict.SenderName
	if senderName == "" {
		senderName = m.SenderName
	}

	return &model.SalesInquiry{
		MessageID:     m.MessageID,
		SenderEmail:   m.SenderEmail,
		SenderName:    senderName,
		CompanyName:   optional(res.Verdict.CompanyName),
		MobileNumber:  optional(res.Verdict.MobileNumber),
		EmailSubject:  m.Subject,
		EmailSummary:  res.Verdict.Summary,
		ExtractedJSON: string(res.Raw),
		EmailRaw:      optional(m.BodyText),
		EmailDate:     m.ReceivedAt,
		InquiryType:   res.Verdict.InquiryType,
		InquiryReason: optional(res.Verdict.InquiryReason),
	}
}

func buildOtherMessage(m model.InboundMessage, res *classifier.Result) *model.OtherMessage {
	senderName := res.Verdict.SenderName
	if senderName == "" {
		senderName = m.SenderName
	}

	return &model.OtherMessage{
		MessageID:     m.MessageID,
		SenderEmail:   m.SenderEmail,
		SenderName:    senderName,
		EmailSubject:  m.Subject,
		EmailSummary:  res.Verdict.Summary,
		ExtractedJSON: string(res.Raw),
		EmailRaw:      optional(m.BodyText),
		EmailDate:     m.ReceivedAt,
		InquiryType:   res.Verdict.InquiryType,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
