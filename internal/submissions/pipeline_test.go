package submissions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/Jeffreasy/KoruFormsService/internal/mailer"
	"github.com/Jeffreasy/KoruFormsService/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type formsStub map[string]*domain.Form

func (f formsStub) GetSubmittable(_ context.Context, id string) (*domain.Form, error) {
	form, ok := f[id]
	if !ok || (form.Status != domain.StatusActive && form.Status != domain.StatusDraft) {
		return nil, storage.ErrNotFound
	}
	return form, nil
}

type memStore struct {
	mu        sync.Mutex
	subs      map[uuid.UUID]*domain.Submission
	logs      map[uuid.UUID]domain.MailLog
	createErr error
	logErr    error
}

func newMemStore() *memStore {
	return &memStore{subs: map[uuid.UUID]*domain.Submission{}, logs: map[uuid.UUID]domain.MailLog{}}
}

func (m *memStore) Create(_ context.Context, s *domain.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	s.ID = uuid.New()
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *memStore) UpdateMailLog(_ context.Context, id uuid.UUID, log domain.MailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logErr != nil {
		return m.logErr
	}
	m.logs[id] = log
	return nil
}

func (m *memStore) ListByForm(_ context.Context, ref uuid.UUID, limit, offset int) ([]domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Submission
	for _, s := range m.subs {
		if s.FormRef == ref {
			out = append(out, *s)
		}
	}
	return out, nil
}

type stubMail struct {
	calls int
	log   domain.MailLog
	err   error
}

func (s *stubMail) SendContactEmail(context.Context, mailer.ContactEmail) (domain.MailLog, error) {
	s.calls++
	return s.log, s.err
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(status domain.FormStatus) (formsStub, *memStore, *stubMail, *Pipeline) {
	site := "w1"
	forms := formsStub{"contact": {ID: uuid.New(), FormID: "contact", WebsiteID: &site, Status: status, IsActive: true,
		EmailSettings: domain.EmailSettings{AdminEmail: "owner@example.com"}}}
	store := newMemStore()
	mail := &stubMail{log: domain.MailLog{Success: true, Method: "smtp", MessageID: "m1", Timestamp: fixedNow}}
	p := NewPipeline(forms, store, mail, Config{Now: func() time.Time { return fixedNow }})
	return forms, store, mail, p
}

func payload() Payload {
	return Payload{
		FormID:    "contact",
		WebsiteID: "w1",
		Data:      domain.Fields{"email": domain.StringValue("ann@example.com")},
		Metadata:  domain.Fields{"url": domain.StringValue("https://w1.example")},
	}
}

func TestProcess_Accepted(t *testing.T) {
	_, store, mail, p := setup(domain.StatusActive)

	out, err := p.Process(context.Background(), payload())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, out.Kind)
	assert.Equal(t, 1, mail.calls)

	stored := store.subs[out.Submission.ID]
	assert.Equal(t, domain.SubmissionUnread, stored.Status)
	assert.False(t, stored.IsSpam)
	assert.Equal(t, "smtp", store.logs[out.Submission.ID].Method)
}

func TestProcess_DraftFormAccepted(t *testing.T) {
	_, _, _, p := setup(domain.StatusDraft)
	_, err := p.Process(context.Background(), payload())
	assert.NoError(t, err)
}

func TestProcess_InactiveFormNotFound(t *testing.T) {
	_, _, mail, p := setup(domain.StatusInactive)
	_, err := p.Process(context.Background(), payload())
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.Zero(t, mail.calls)
}

func TestProcess_HoneypotShortCircuits(t *testing.T) {
	_, store, mail, p := setup(domain.StatusActive)

	in := payload()
	in.Metadata["honeypot"] = domain.StringValue("i am a bot")

	out, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSpam, out.Kind)
	assert.Zero(t, mail.calls, "spam must never dispatch mail")

	stored := store.subs[out.Submission.ID]
	assert.True(t, stored.IsSpam)
	assert.Equal(t, domain.SubmissionArchived, stored.Status)
	require.NotNil(t, stored.MailLog)
	assert.Equal(t, domain.MailMethodSkipped, stored.MailLog.Method)
	assert.Equal(t, domain.MailErrorSpam, stored.MailLog.Error)
	assert.False(t, stored.MailLog.Success)
}

func TestProcess_EmptyHoneypotIsNotSpam(t *testing.T) {
	_, _, mail, p := setup(domain.StatusActive)
	in := payload()
	in.Metadata["honeypot"] = domain.StringValue("")

	out, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, out.Kind)
	assert.Equal(t, 1, mail.calls)
}

func TestProcess_WhitespaceHoneypotIsSpam(t *testing.T) {
	_, _, mail, p := setup(domain.StatusActive)
	in := payload()
	in.Metadata["honeypot"] = domain.StringValue("   ")

	out, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSpam, out.Kind)
	assert.Zero(t, mail.calls)
}

func TestProcess_MailFailureStillSucceeds(t *testing.T) {
	_, store, mail, p := setup(domain.StatusActive)
	mail.log = domain.MailLog{}
	mail.err = context.DeadlineExceeded

	out, err := p.Process(context.Background(), payload())
	require.NoError(t, err)

	log := store.logs[out.Submission.ID]
	assert.False(t, log.Success)
	assert.Equal(t, domain.MailErrorTimeout, log.ErrorKind)
	assert.Equal(t, fixedNow, log.Timestamp)
}

func TestProcess_MailLogWriteFailureIsLoggedOnly(t *testing.T) {
	_, store, _, p := setup(domain.StatusActive)
	store.logErr = errors.New("db gone")

	out, err := p.Process(context.Background(), payload())
	require.NoError(t, err)
	assert.True(t, out.Submission.MailLog.Success)
}

func TestProcess_Validation(t *testing.T) {
	_, store, _, p := setup(domain.StatusActive)

	_, err := p.Process(context.Background(), Payload{Data: domain.Fields{"a": domain.StringValue("b")}})
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))

	_, err = p.Process(context.Background(), Payload{FormID: "contact"})
	assert.Equal(t, domain.KindBadRequest, domain.KindOf(err))

	store.createErr = errors.New("insert failed")
	_, err = p.Process(context.Background(), payload())
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestProcess_CustomHoneypotField(t *testing.T) {
	forms, store, mail, _ := setup(domain.StatusActive)
	p := NewPipeline(forms, store, mail, Config{HoneypotField: "website_url"})

	in := payload()
	in.Metadata["website_url"] = domain.StringValue("http://spam")
	out, err := p.Process(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSpam, out.Kind)
}
