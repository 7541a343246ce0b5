package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/yourusername/researchmate/internal/config"
	"github.com/yourusername/researchmate/internal/mail"
)

type memoryRecordStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func newMemoryRecordStore() *memoryRecordStore {
	return &memoryRecordStore{records: make(map[string]*Record)}
}

func (s *memoryRecordStore) Get(ctx context.Context, jobID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *memoryRecordStore) Upsert(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[record.JobID] = &cp
	return nil
}

func (s *memoryRecordStore) update(jobID string, mutate func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok {
		return errors.New("job not found")
	}
	mutate(r)
	return nil
}

func (s *memoryRecordStore) MarkRunning(ctx context.Context, jobID string) error {
	return s.update(jobID, func(r *Record) {
		r.Status = StatusRunning
		r.Attempts++
	})
}

func (s *memoryRecordStore) MarkDone(ctx context.Context, jobID string) error {
	return s.update(jobID, func(r *Record) { r.Status = StatusSucceeded })
}

func (s *memoryRecordStore) MarkFailed(ctx context.Context, jobID string, info *ErrorInfo) error {
	return s.update(jobID, func(r *Record) {
		r.Status = StatusFailed
		r.Error = info
	})
}

type stubSender struct {
	err  error
	sent []mail.Message
}

func (s *stubSender) Send(ctx context.Context, msg mail.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func newTestManager(store RecordStore, sender mail.Sender) *Manager {
	return &Manager{
		cfg:    &config.Config{OTPTTLMinutes: 10},
		store:  store,
		sender: sender,
		logger: zap.NewNop(),
	}
}

func otpTask(t *testing.T, payload OTPPayload) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return asynq.NewTask(taskTypeOTPMail, body)
}

func TestHandleOTPTaskSendsMail(t *testing.T) {
	store := newMemoryRecordStore()
	sender := &stubSender{}
	m := newTestManager(store, sender)
	ctx := context.Background()

	if err := store.Upsert(ctx, &Record{JobID: "job-1", Kind: kindOTP, To: "ana@cit.edu", Status: StatusQueued}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	task := otpTask(t, OTPPayload{JobID: "job-1", To: "ana@cit.edu", Name: "Ana", Code: "314159"})
	if err := m.handleOTPTask(ctx, task); err != nil {
		t.Fatalf("handleOTPTask returned error: %v", err)
	}

	if len(sender.sent) != 1 || !strings.Contains(sender.sent[0].Body, "314159") {
		t.Fatalf("unexpected sent mail: %+v", sender.sent)
	}
	record, _ := store.Get(ctx, "job-1")
	if record.Status != StatusSucceeded || record.Attempts != 1 {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestHandleOTPTaskRecordsFailure(t *testing.T) {
	store := newMemoryRecordStore()
	sender := &stubSender{err: errors.New("smtp down")}
	m := newTestManager(store, sender)
	ctx := context.Background()

	_ = store.Upsert(ctx, &Record{JobID: "job-2", Kind: kindOTP, Status: StatusQueued})

	err := m.handleOTPTask(ctx, otpTask(t, OTPPayload{JobID: "job-2", To: "b@cit.edu", Code: "000001"}))
	if err == nil {
		t.Fatal("expected error to trigger retry")
	}
	record, _ := store.Get(ctx, "job-2")
	if record.Status != StatusFailed || record.Error == nil || record.Error.Code != "SEND_FAILED" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestHandleOTPTaskSkipsRetryOnBadPayload(t *testing.T) {
	m := newTestManager(newMemoryRecordStore(), &stubSender{})

	err := m.handleOTPTask(context.Background(), asynq.NewTask(taskTypeOTPMail, []byte("not-json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
