package triage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/internal/classifier"
	"mailtriage/internal/event"
	"mailtriage/internal/model"
	"mailtriage/pkg/util"
)

type fakeAccounts struct {
	accounts []model.MailAccount
	err      error
}

func (f *fakeAccounts) ListActive(ctx context.Context) ([]model.MailAccount, error) {
	return f.accounts, f.err
}

type fakeFetcher struct {
	mu       sync.Mutex
	msgs     map[string][]model.InboundMessage
	errs     map[string]error
	appCodes map[string]string
}

func (f *fakeFetcher) FetchRecent(ctx context.Context, account, appCode string) ([]model.InboundMessage, error) {
	f.mu.Lock()
	if f.appCodes == nil {
		f.appCodes = make(map[string]string)
	}
	f.appCodes[account] = appCode
	f.mu.Unlock()

	if err := f.errs[account]; err != nil {
		return nil, err
	}
	return f.msgs[account], nil
}

type fakeClassifier struct {
	mu       sync.Mutex
	verdicts map[string]classifier.Verdict // keyed by subject
	errs     map[string]error
	calls    []string
}

func (f *fakeClassifier) Classify(ctx context.Context, subject, body string) (*classifier.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, subject)
	f.mu.Unlock()

	if err := f.errs[subject]; err != nil {
		return nil, err
	}

	v, ok := f.verdicts[subject]
	if !ok {
		v = classifier.Verdict{IsInquiry: false, InquiryType: "other", Summary: "n/a"}
	}
	raw, _ := json.Marshal(v)
	return &classifier.Result{Verdict: v, Raw: raw}, nil
}

type fakeInquiryStore struct {
	existing   []string
	inserted   []*model.SalesInquiry
	insertErrs map[string]error
}

func (f *fakeInquiryStore) ExistingMessageIDs(ctx context.Context, ids []string) ([]string, error) {
	return intersect(ids, f.existing), nil
}

func (f *fakeInquiryStore) Insert(ctx context.Context, inq *model.SalesInquiry) (int, error) {
	if err := f.insertErrs[inq.MessageID]; err != nil {
		return 0, err
	}
	f.inserted = append(f.inserted, inq)
	return len(f.inserted), nil
}

type fakeOtherStore struct {
	existing   []string
	inserted   []*model.OtherMessage
	insertErrs map[string]error
}

func (f *fakeOtherStore) ExistingMessageIDs(ctx context.Context, ids []string) ([]string, error) {
	return intersect(ids, f.existing), nil
}

func (f *fakeOtherStore) Insert(ctx context.Context, msg *model.OtherMessage) (int, error) {
	if err := f.insertErrs[msg.MessageID]; err != nil {
		return 0, err
	}
	f.inserted = append(f.inserted, msg)
	return len(f.inserted), nil
}

type fakeClaimer struct {
	denied   map[string]bool
	claimed  []string
	released []string
}

func (f *fakeClaimer) Claim(ctx context.Context, messageID string) bool {
	if f.denied[messageID] {
		return false
	}
	f.claimed = append(f.claimed, messageID)
	return true
}

func (f *fakeClaimer) Release(ctx context.Context, messageID string) {
	f.released = append(f.released, messageID)
}

type publishedEvent struct {
	routingKey string
	payload    any
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (f *fakePublisher) Publish(routingKey string, payload any) error {
	f.events = append(f.events, publishedEvent{routingKey: routingKey, payload: payload})
	return f.err
}

func intersect(ids, existing []string) []string {
	set := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		set[id] = struct{}{}
	}
	var out []string
	for _, id := range ids {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func activeAccount(email string) model.MailAccount {
	return model.MailAccount{Email: email, AppCode: "code-" + email, Status: model.AccountStatusActive}
}

func inbound(id, account, subject string) model.InboundMessage {
	return model.InboundMessage{
		MessageID:   id,
		Account:     account,
		SenderEmail: "sender@acme.com",
		SenderName:  "Sender",
		Subject:     subject,
		BodyText:    "body of " + subject,
		ReceivedAt:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func inquiryVerdict(summary string) classifier.Verdict {
	return classifier.Verdict{
		IsInquiry:   true,
		InquiryType: "sales",
		SenderName:  "Jane Doe",
		CompanyName: "Acme Corp",
		Summary:     summary,
	}
}

type deps struct {
	accounts   *fakeAccounts
	fetcher    *fakeFetcher
	classifier *fakeClassifier
	inquiries  *fakeInquiryStore
	others     *fakeOtherStore
	claimer    *fakeClaimer
	publisher  *fakePublisher
}

func newTestService(d *deps) *Service {
	var publisher EventPublisher
	if d.publisher != nil {
		publisher = d.publisher
	}
	return NewService(
		d.accounts,
		d.fetcher,
		d.classifier,
		d.inquiries,
		d.others,
		d.claimer,
		publisher,
		nil,
		zap.NewNop(),
	)
}

func outcomeByID(t *testing.T, report *model.CycleReport, id string) model.MessageOutcome {
	t.Helper()
	for _, o := range report.Messages {
		if o.MessageID == id {
			return o
		}
	}
	t.Fatalf("no outcome for message %s", id)
	return model.MessageOutcome{}
}

func TestRunCycleBranchesByVerdict(t *testing.T) {
	d := &deps{
		accounts: &fakeAccounts{accounts: []model.MailAccount{activeAccount("a@example.com")}},
		fetcher: &fakeFetcher{msgs: map[string][]model.InboundMessage{
			"a@example.com": {
				inbound("m1", "a@example.com", "Quote request"),
				inbound("m2", "a@example.com", "Newsletter"),
			},
		}},
		classifier: &fakeClassifier{verdicts: map[string]classifier.Verdict{
			"Quote request": inquiryVerdict("wants a quote"),
		}},
		inquiries: &fakeInquiryStore{},
		others:    &fakeOtherStore{},
		claimer:   &fakeClaimer{},
		publisher: &fakePublisher{},
	}

	report, err := newTestService(d).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Accounts)
	assert.Len(t, report.Messages, 2)
	assert.Empty(t, report.AccountFailures)

	assert.Equal(t, model.OutcomePersistedInquiry, outcomeByID(t, report, "m1").Outcome)
	assert.Equal(t, model.OutcomePersistedOther, outcomeByID(t, report, "m2").Outcome)

	require.Len(t, d.inquiries.inserted, 1)
	inq := d.inquiries.inserted[0]
	assert.Equal(t, "m1", inq.MessageID)
	assert.Equal(t, "Jane Doe", inq.SenderName)
	require.NotNil(t, inq.CompanyName)
	assert.Equal(t, "Acme Corp", *inq.CompanyName)

	require.Len(t, d.others.inserted, 1)
	assert.Equal(t, "m2", d.others.inserted[0].MessageID)
}

func TestRunCycleStoresVerdictJSONVerbatim(t *testing.T) {
	verdict := inquiryVerdict("wants a quote")
	d := &deps{
		accounts: &fakeAccounts{accounts: []model.MailAccount{activeAccount("a@example.com")}},
		fetcher: &fakeFetcher{msgs: map[string][]model.InboundMessage{
			"a@example.com": {inbound("m1", "a@example.com", "Quote request")},
		}},
		classifier: &fakeClassifier{verdicts: map[string]classifier.Verdict{"Quote request": verdict}},
		inquiries:  &fakeInquiryStore{},
		others:     &fakeOtherStore{},
		claimer:    &fakeClaimer{},
	}

	_, err := newTestService(d).RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, d.inquiries.inserted, 1)

	var roundTrip classifier.Verdict
	require.NoError(t, json.Unmarshal([]byte(d.inquiries.inserted[0].ExtractedJSON), &roundTrip))
	assert.Equal(t, verdict, roundTrip)
}

func TestRunCycleIsolatesAccountFailures(t *testing.T) {
	d := &deps{
		accounts: &fakeAccounts{accounts: []model.MailAccount{
			activeAccount("a@example.com"),
			activeAccount("b@example.com"),
		}},
		fetcher: &fakeFetcher{
			msgs: map[string][]model.InboundMessage{
				"a@example.com": {inbound("m1", "a@example.com", "Quote request")},
			},
			errs: map[string]error{
				"b@example.com": errors.New("dial tcp: connection refused"),
			},
		},
		classifier: &fakeClassifier{verdicts: map[string]classifier.Verdict{
			"Quote request": inquiryVerdict("wants a quote"),
		}},
		inquiries: &fakeInquiryStore{},
		others:    &fakeOtherStore{},
		claimer:   &fakeClaimer{},
	}

	report, err := newTestService(d).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Accounts)
	require.Len(t, report.AccountFailures, 1)
	assert.Equal(t, "b@example.com", report.AccountFailures[0].Account)
	assert.Contains(t, report.AccountFailures[0].Reason, "connection refused")

	// The healthy account still got processed.
	require.Len(t, report.Messages, 1)
	assert.Equal(t, model.OutcomePersistedInquiry, report.Messages[0].Outcome)
}

func TestRunCycleCollapsesInCycleDuplicates(t *testing.T) {
	d := &deps{
		accounts: &fakeAccounts{accounts: []model.MailAccount{
			activeAccount("a@example.com"),
			activeAccount("b@example.com"),
		}},
		fetcher: &fakeFetcher{msgs: map[string][]model.InboundMessage{
			"a@example.com": {inbound("m1", "a@example.com", "Quote request")},
			"b@example.com": {inbound("m1", "b@example.com", "Quote request")},
		}},
		classifier: &fakeClassifier{verdicts: map[string]classifier.Verdict{
			"Quote request": inquiryVerdict("wants a quote"),
		}},
		inquiries: &fakeInquiryStore{},
		others:    &fakeOtherStore{},
		claimer:   &fakeClaimer{},
	}

	report, err := newTestService(d).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Messages, 2)
	assert.Len(t, d.inquiries.inserted, 1)

	var duplicates int
	for _, o := range report.Messages {
		if o.Outcome == model.OutcomeDuplicate {
			duplicates++
		}
	}
	assert.Equal(t, 1, duplicates)
}

func TestRunCycleSkipsMessagesAlreadyPersisted(t *testing.T) {
	d := &deps{
		accounts: &fakeAccounts{accounts: []model.MailAccount{activeAccount("a@example.com")}},
		fetcher: &fakeFetcher{msgs: map[string][]model.InboundMessage{
			"a@example.com": {
				inbound("m1", "a@example.com", "Already an inquiry"),
				inbound("m2", "a@example.com", "Already an other message"),
				inbound("m3", "a@example.com", "Brand new"),
			},
		}},
		classifier: &fakeClassifier{},
		inquiries:  &fakeInquiryStore{existing: []string{"m1"}},
		others:     &fakeOtherStore{existing: []string{"m2"}},
		claimer:    &fakeClaimer{},
	}

	report, err := newTestService(d).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeDuplicate, outcomeByID(t, report, "m1").Outcome)
	assert.Equal(t, model.OutcomeDuplicate, outcomeByID(t, report, "m2").Outcome)
	assert.Equal(t, model.OutcomePersistedOther, outcomeByID(t, report, "m3").Outcome)

	// Known messages never reach the classifier.
	assert.Equal(t, []string{"Brand new"}, d.classifier.calls)
}

func TestRunCycleReportsClassificationFailures(t *testing.T) {
	d := &deps{
		accounts: &fakeAccounts{accounts: []model.MailAccount{activeAccount("a@example.com")}},
		fetcher: &fakeFetcher{msgs: map[string][]model.InboundMessage{
			"a@example.com": {
				inbound("m1", "a@example.com", "Quote request"),
				inbound("m2", "a@example.com", "Garbled"),
			},
		}},
		classifier: &fakeClassifier{
			verdicts: map[string]classifier.Verdict{"Quote request": inquiryVerdict("wants a quote")},
			errs:     map[string]error{"Garbled": errors.New("classification service returned status 502")},
		},
		inquiries: &fakeInquiryStore{},
		others:    &fakeOtherStore{},
		claimer:   &fakeClaimer{},
	}

	report, err := newTestService(d).RunCycle(context.Background())
	require.NoError(t, err)

	failed := outcomeByID(t, report, "m2")
	assert.Equal(t, model.OutcomeFailed, failed.Outcome)
	assert.Contains(t, failed.Reason, "502")

	// The failed message was never claimed or persisted.
	assert.NotContains(t, d.claimer.claimed, "m2")
	assert.Len(t, d.inquiries.inserted, 1)
	assert.Empty(t, d.others.inserted)
}

func TestRunCycleReleasesClaimOnInsertFailure(t *testing.T) {
	d := &deps{
		accounts: &fakeAccounts{accounts: []model.MailAccount{activeAccount("a@example.com")}},
		fetcher: &fakeFetcher{msgs: map[string][]model.InboundMessage{
			"a@example.com": {inbound("m1", "a@example.com", "Quote request")},
		}},
		classifier: &fakeClassifier{verdicts: map[string]classifier.Verdict{
			"Quote request": inquiryVerdict("wants a quote"),
		}},
		inquiries: &fakeInquiryStore{insertErrs: map[string]error{"m1": errors.New("connection reset")}},
		others:    &fakeOtherStore{},
		claimer:   &fakeClaimer{},
	}

	report, err := newTestService(d).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeFailed, outcomeByID(t, report, "m1").Outcome)
	assert.Equal(t, []string{"m1"}, d.claimer.released)
}

func TestRunCycleTreatsDeniedClaimAsDuplicate(t *testing.T) {
	d := &deps{
		accounts: &fakeAccounts{accounts: []model.MailAccount{activeAccount("a@example.com")}},
		fetcher: &fakeFetcher{msgs: map[string][]model.InboundMessage{
			"a@example.com": {inbound("m1", "a@example.com", "Quote request")},
		}},
		classifier: &fakeClassifier{verdicts: map[string]classifier.Verdict{
			"Quote request": inquiryVerdict("wants a quote"),
		}},
		inquiries: &fakeInquiryStore{},
		others:    &fakeOtherStore{},
		claimer:   &fakeClaimer{denied: map[string]bool{"m1": true}},
	}

	report, err := newTestService(d).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeDuplicate, outcomeByID(t, report, "m1").Outcome)
	assert.Empty(t, d.inquiries.inserted)
}

func TestRunCycleFailsWhenAccountListUnavailable(t *testing.T) {
	d := &deps{
		accounts:   &fakeAccounts{err: errors.New("db down")},
		fetcher:    &fakeFetcher{},
		classifier: &fakeClassifier{},
		inquiries:  &fakeInquiryStore{},
		others:     &fakeOtherStore{},
		claimer:    &fakeClaimer{},
	}

	report, err := newTestService(d).RunCycle(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
}

func TestRunCyclePublishesEvents(t *testing.T) {
	d := &deps{
		accounts: &fakeAccounts{accounts: []model.MailAccount{activeAccount("a@example.com")}},
		fetcher: &fakeFetcher{msgs: map[string][]model.InboundMessage{
			"a@example.com": {
				inbound("m1", "a@example.com", "Quote request"),
				inbound("m2", "a@example.com", "Newsletter"),
			},
		}},
		classifier: &fakeClassifier{verdicts: map[string]classifier.Verdict{
			"Quote request": inquiryVerdict("wants a quote"),
		}},
		inquiries: &fakeInquiryStore{},
		others:    &fakeOtherStore{},
		claimer:   &fakeClaimer{},
		publisher: &fakePublisher{},
	}

	_, err := newTestService(d).RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, d.publisher.events, 2)

	keys := []string{d.publisher.events[0].routingKey, d.publisher.events[1].routingKey}
	assert.Contains(t, keys, event.InquiryCreated)
	assert.Contains(t, keys, event.MessageClassified)
}

func TestRunCycleToleratesMissingPublisher(t *testing.T) {
	d := &deps{
		accounts: &fakeAccounts{accounts: []model.MailAccount{activeAccount("a@example.com")}},
		fetcher: &fakeFetcher{msgs: map[string][]model.InboundMessage{
			"a@example.com": {inbound("m1", "a@example.com", "Quote request")},
		}},
		classifier: &fakeClassifier{verdicts: map[string]classifier.Verdict{
			"Quote request": inquiryVerdict("wants a quote"),
		}},
		inquiries: &fakeInquiryStore{},
		others:    &fakeOtherStore{},
		claimer:   &fakeClaimer{},
	}

	report, err := newTestService(d).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.OutcomePersistedInquiry, report.Messages[0].Outcome)
}

func TestRunCycleDecryptsAppCodes(t *testing.T) {
	codec, err := util.NewSecretCodec("0101010101010101010101010101010101010101010101010101010101010101")
	require.NoError(t, err)
	require.NotNil(t, codec)

	sealed, err := codec.Encrypt("the-app-code")
	require.NoError(t, err)

	acct := activeAccount("a@example.com")
	acct.AppCode = sealed

	d := &deps{
		accounts:   &fakeAccounts{accounts: []model.MailAccount{acct}},
		fetcher:    &fakeFetcher{},
		classifier: &fakeClassifier{},
		inquiries:  &fakeInquiryStore{},
		others:     &fakeOtherStore{},
		claimer:    &fakeClaimer{},
	}

	svc := NewService(d.accounts, d.fetcher, d.classifier, d.inquiries, d.others, d.claimer, nil, codec, zap.NewNop())

	_, err = svc.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "the-app-code", d.fetcher.appCodes["a@example.com"])
}
