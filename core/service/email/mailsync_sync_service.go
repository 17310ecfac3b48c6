package mail

import (
	"context"
	"strings"
	"sync"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/in"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/logger"

	"github.com/go-pkgz/pool"
)

// =============================================================================
// SyncService - fetch, validate and store; relay outbound mail
// =============================================================================

// SyncConfig configures SyncService.
type SyncConfig struct {
	Operator       string // the mailbox this process syncs
	PersistWorkers int
}

// SyncService coordinates the mail transport and the stores. Ticks never
// overlap: a tick that finds the guard taken returns SYNC_IN_PROGRESS.
type SyncService struct {
	transport out.MailTransport
	emails    out.EmailRepository
	contacts  out.ContactRepository
	guard     out.TickGuard
	operator  string
	workers   int
	log       *logger.Logger

	stateMu sync.RWMutex
	state   in.SyncState
}

func NewSyncService(
	transport out.MailTransport,
	emails out.EmailRepository,
	contacts out.ContactRepository,
	guard out.TickGuard,
	cfg SyncConfig,
) *SyncService {
	workers := cfg.PersistWorkers
	if workers <= 0 {
		workers = 1
	}
	return &SyncService{
		transport: transport,
		emails:    emails,
		contacts:  contacts,
		guard:     guard,
		operator:  strings.ToLower(strings.TrimSpace(cfg.Operator)),
		workers:   workers,
		log:       logger.WithComponent("sync"),
		state:     in.SyncStateIdle,
	}
}

// Sync runs one tick and returns the messages that were stored, in fetch order.
// Malformed payloads and failed upserts are logged and skipped.
func (s *SyncService) Sync(ctx context.Context) ([]*domain.Message, error) {
	acquired, err := s.guard.TryAcquire(ctx)
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}
	if !acquired {
		return nil, apperr.SyncInProgress()
	}
	defer func() {
		s.setState(in.SyncStateIdle)
		if err := s.guard.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.WithError(err).Warn("failed to release sync guard")
		}
	}()

	start := time.Now()

	s.setState(in.SyncStateFetching)
	raws, err := s.transport.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	s.setState(in.SyncStateParsing)
	messages := make([]*domain.Message, 0, len(raws))
	for i, raw := range raws {
		msg, err := domain.ParseMessage(raw)
		if err != nil {
			s.log.WithError(err).Warn("skipping malformed message %d of %d", i+1, len(raws))
			continue
		}
		messages = append(messages, msg)
	}

	s.setState(in.SyncStatePersisting)
	stored := s.persist(ctx, messages)

	s.log.WithDuration(time.Since(start)).
		Info("sync stored %d of %d fetched messages (%d malformed)", len(stored), len(raws), len(raws)-len(messages))
	return stored, nil
}

type persistJob struct {
	index int
	msg   *domain.Message
}

// persist upserts messages concurrently. Distinct provider IDs are independent,
// and results are collected by index so fetch order is kept.
func (s *SyncService) persist(ctx context.Context, messages []*domain.Message) []*domain.Message {
	if len(messages) == 0 {
		return []*domain.Message{}
	}

	ok := make([]bool, len(messages))
	worker := pool.WorkerFunc[persistJob](func(ctx context.Context, job persistJob) error {
		if err := s.emails.Upsert(ctx, job.msg); err != nil {
			s.log.WithError(err).Error("failed to store message %s", job.msg.ID)
			return nil
		}
		ok[job.index] = true
		s.recordSender(ctx, job.msg)
		return nil
	})

	group := pool.New[persistJob](s.workers, worker).WithContinueOnError()
	if err := group.Go(ctx); err != nil {
		s.log.WithError(err).Error("failed to start persist workers")
		return []*domain.Message{}
	}
	for i, msg := range messages {
		group.Submit(persistJob{index: i, msg: msg})
	}
	if err := group.Close(ctx); err != nil {
		s.log.WithError(err).Warn("persist workers stopped early")
	}

	stored := make([]*domain.Message, 0, len(messages))
	for i, msg := range messages {
		if ok[i] {
			stored = append(stored, msg)
		}
	}
	return stored
}

// recordSender adds the sender to the operator's contacts. Advisory only.
func (s *SyncService) recordSender(ctx context.Context, msg *domain.Message) {
	sender := msg.SenderAddress()
	if sender == "" || s.operator == "" {
		return
	}
	if err := s.contacts.RecordContacts(ctx, s.operator, []string{sender}); err != nil {
		s.log.WithError(err).Warn("failed to record sender %s", sender)
	}
}

// Send updates the address book both ways and relays the message. The
// returned bool is the transport's verdict; bookkeeping never changes it.
func (s *SyncService) Send(ctx context.Context, email *domain.OutboundEmail) (bool, error) {
	if err := email.Validate(); err != nil {
		return false, err
	}

	s.recordRecipients(ctx, email.Recipients)

	sent, err := s.transport.Send(ctx, email)
	if err != nil {
		return false, err
	}
	if !sent {
		s.log.Warn("transport rejected mail to %s", strings.Join(email.Recipients, ","))
		return false, nil
	}

	record := &domain.SentRecord{
		Subject:      email.Subject,
		Body:         email.Body,
		ToRecipients: email.Recipients,
		Attachments:  email.Attachments,
		Status:       domain.SentStatus,
	}
	if err := s.emails.RecordSent(ctx, record); err != nil {
		s.log.WithError(err).Warn("failed to record sent mail")
	}
	return true, nil
}

func (s *SyncService) recordRecipients(ctx context.Context, recipients []string) {
	if s.operator == "" {
		return
	}
	if err := s.contacts.RecordContacts(ctx, s.operator, recipients); err != nil {
		s.log.WithError(err).Warn("failed to record contacts for %s", s.operator)
	}
	for _, r := range recipients {
		if err := s.contacts.RecordContacts(ctx, r, []string{s.operator}); err != nil {
			s.log.WithError(err).Warn("failed to record contacts for %s", r)
		}
	}
}

func (s *SyncService) ListRecent(ctx context.Context, limit int) ([]*domain.Message, error) {
	return s.emails.ListRecent(ctx, limit)
}

func (s *SyncService) Status() in.SyncStatus {
	s.stateMu.RLock()
	state := s.state
	s.stateMu.RUnlock()
	return in.SyncStatus{State: state, Cursor: s.transport.Cursor()}
}

func (s *SyncService) setState(state in.SyncState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

var _ in.EmailService = (*SyncService)(nil)
