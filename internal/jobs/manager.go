// Package jobs は OTP メール送信の非同期ジョブ管理機能を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/yourusername/researchmate/internal/config"
	"github.com/yourusername/researchmate/internal/mail"
)

const (
	taskTypeOTPMail = "mail:otp"
	queueMail       = "mail"
	kindOTP         = "otp"
)

// RecordStore はジョブ状態の保存先です。Store が実装します。
type RecordStore interface {
	Get(ctx context.Context, jobID string) (*Record, error)
	Upsert(ctx context.Context, record *Record) error
	MarkRunning(ctx context.Context, jobID string) error
	MarkDone(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error
}

// Manager はメール送信ジョブの投入と状態管理を担います。
type Manager struct {
	cfg    *config.Config
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  RecordStore
	sender mail.Sender
	logger *zap.Logger
}

// OTPPayload は OTP メール送信ジョブのペイロードです。
type OTPPayload struct {
	JobID string `json:"jobId"`
	To    string `json:"to"`
	Name  string `json:"name"`
	Code  string `json:"code"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, sender mail.Sender, store RecordStore, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if sender == nil {
		return nil, errors.New("sender is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	concurrency := cfg.MailWorkers
	if concurrency <= 0 {
		concurrency = 1
	}
	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueMail: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:    cfg,
		client: client,
		server: server,
		mux:    mux,
		store:  store,
		sender: sender,
		logger: logger,
	}
	mux.HandleFunc(taskTypeOTPMail, manager.handleOTPTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("asynq server stopped with error", zap.Error(err))
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return m.client.Close()
}

// NotifyOTP は OTP メール送信ジョブを投入します。account.OTPNotifier を満たします。
func (m *Manager) NotifyOTP(ctx context.Context, email, name, code string) error {
	jobID, err := m.Enqueue(ctx, &OTPPayload{
		JobID: uuid.NewString(),
		To:    email,
		Name:  name,
		Code:  code,
	})
	if err != nil {
		return err
	}
	m.logger.Info("otp mail queued", zap.String("jobID", jobID), zap.String("to", email))
	return nil
}

// Enqueue はジョブをキューに投入し、ジョブIDを返します。
func (m *Manager) Enqueue(ctx context.Context, payload *OTPPayload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("payload is nil")
	}
	if payload.JobID == "" {
		return "", fmt.Errorf("payload.JobID is required")
	}

	record := &Record{
		JobID:  payload.JobID,
		Kind:   kindOTP,
		To:     payload.To,
		Status: StatusQueued,
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	// コードの有効期限を過ぎた送信は意味がないので、タスクも同じ期限で打ち切る
	task := asynq.NewTask(taskTypeOTPMail, body, asynq.Queue(queueMail))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.Timeout(m.cfg.OTPTTL())); err != nil {
		_ = m.store.MarkFailed(ctx, payload.JobID, &ErrorInfo{Code: "ENQUEUE_FAILED", Message: err.Error()})
		return "", err
	}
	return payload.JobID, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleOTPTask(ctx context.Context, task *asynq.Task) error {
	var payload OTPPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}

	if err := m.store.MarkRunning(ctx, payload.JobID); err != nil {
		m.logger.Warn("failed to mark job running", zap.String("jobID", payload.JobID), zap.Error(err))
	}

	msg, err := mail.OTPMessage(payload.To, payload.Name, payload.Code, m.cfg.OTPTTL())
	if err != nil {
		return m.failJob(ctx, payload.JobID, "RENDER_FAILED", err)
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		return m.failJob(ctx, payload.JobID, "SEND_FAILED", err)
	}

	if err := m.store.MarkDone(ctx, payload.JobID); err != nil {
		m.logger.Warn("failed to mark job done", zap.String("jobID", payload.JobID), zap.Error(err))
	}
	m.logger.Info("otp mail sent", zap.String("jobID", payload.JobID))
	return nil
}

// failJob は失敗を記録し、Asynq に再試行させるため元のエラーを返します。
func (m *Manager) failJob(ctx context.Context, jobID, code string, cause error) error {
	if err := m.store.MarkFailed(ctx, jobID, &ErrorInfo{
		Code:    code,
		Message: cause.Error(),
	}); err != nil {
		m.logger.Warn("failed to mark job failed", zap.String("jobID", jobID), zap.Error(err))
	}
	m.logger.Error("otp mail job failed", zap.String("jobID", jobID), zap.String("code", code), zap.Error(cause))
	return cause
}
