// Package verification はコンサルタントの資格証明書類の提出と、管理者による審査を提供します。
package verification

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/yourusername/researchmate/internal/storage"
)

const sniffLen = 3072

var allowedTypes = []string{"application/pdf", "image/png", "image/jpeg"}

// Store は申請の永続化を担います。
// Review は承認時にコンサルタントの検証済みフラグも同時に更新します。
type Store interface {
	Create(ctx context.Context, v *Verification) error
	Get(ctx context.Context, id string) (*Verification, error)
	List(ctx context.Context, status Status) ([]*Verification, error)
	Review(ctx context.Context, id string, status Status, at time.Time) (bool, error)
}

// Submission は提出フォームの入力値です。
type Submission struct {
	ContactNumber string `validate:"required,max=15"`
	Expertise     string `validate:"required,max=100"`
	Workplace     string `validate:"max=100"`
	Qualification string `validate:"required,max=200"`
}

// Limits は提出書類の上限です。
type Limits struct {
	MaxSize  int64
	MaxPages int
}

// Service は申請の受付と審査を行います。
type Service struct {
	store    Store
	files    *storage.Local
	limits   Limits
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService は Service を作成します。
func NewService(store Store, files *storage.Local, limits Limits, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		files:    files,
		limits:   limits,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Submit は書類を検査して保存し、保留中の申請を作成します。
// 書類は PDF/PNG/JPEG のみ受け付け、PDF はページ数を検査します。
func (s *Service) Submit(ctx context.Context, userID string, sub Submission, doc io.Reader) (*Verification, error) {
	sub = Submission{
		ContactNumber: strings.TrimSpace(sub.ContactNumber),
		Expertise:     strings.TrimSpace(sub.Expertise),
		Workplace:     strings.TrimSpace(sub.Workplace),
		Qualification: strings.TrimSpace(sub.Qualification),
	}
	if err := s.validate.Struct(sub); err != nil {
		return nil, newError(CodeInvalidInput, "Please fill in contact number, expertise and qualification.", err)
	}
	if doc == nil {
		return nil, newError(CodeInvalidInput, "Please attach a document.", nil)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(doc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	head = head[:n]
	if n == 0 {
		return nil, newError(CodeInvalidInput, "The document is empty.", nil)
	}

	mtype := mimetype.Detect(head)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return nil, newError(CodeUnsupportedType, "Only PDF, PNG or JPEG documents are accepted.", nil)
	}

	name := uuid.NewString() + mtype.Extension()
	body := io.MultiReader(bytes.NewReader(head), doc)
	if s.limits.MaxSize > 0 {
		body = io.LimitReader(body, s.limits.MaxSize+1)
	}
	size, err := s.files.Save(ctx, name, body)
	if err != nil {
		return nil, err
	}
	if s.limits.MaxSize > 0 && size > s.limits.MaxSize {
		s.discard(ctx, name)
		return nil, newError(CodeLimitExceeded, "The document is too large.", nil)
	}

	pages := 0
	if mtype.Is("application/pdf") {
		pages, err = s.countPages(name)
		if err != nil {
			s.discard(ctx, name)
			return nil, err
		}
	}

	v := &Verification{
		ID:            uuid.NewString(),
		UserID:        userID,
		ContactNumber: sub.ContactNumber,
		Expertise:     sub.Expertise,
		Workplace:     sub.Workplace,
		Qualification: sub.Qualification,
		Document:      name,
		MimeType:      mtype.String(),
		Size:          size,
		Pages:         pages,
		Status:        StatusPending,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.Create(ctx, v); err != nil {
		s.discard(ctx, name)
		return nil, err
	}
	s.logger.Info("verification submitted",
		zap.String("id", v.ID), zap.String("userID", userID), zap.String("mime", v.MimeType), zap.Int("pages", pages))
	return v, nil
}

// List は申請の一覧を返します。
func (s *Service) List(ctx context.Context, status Status) ([]*Verification, error) {
	return s.store.List(ctx, status)
}

// Approve は申請を承認し、コンサルタントを検証済みにします。
func (s *Service) Approve(ctx context.Context, id string) (*Verification, error) {
	return s.review(ctx, id, StatusApproved)
}

// Reject は申請を却下します。
func (s *Service) Reject(ctx context.Context, id string) (*Verification, error) {
	return s.review(ctx, id, StatusRejected)
}

// Document は申請と書類ファイルを返します。ファイルは呼び出し側で閉じてください。
func (s *Service) Document(ctx context.Context, id string) (*Verification, *os.File, error) {
	v, err := s.get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.files.Open(ctx, v.Document)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, newError(CodeNotFound, "The document is no longer available.", err)
	}
	if err != nil {
		return nil, nil, err
	}
	return v, f, nil
}

func (s *Service) review(ctx context.Context, id string, status Status) (*Verification, error) {
	v, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	ok, err := s.store.Review(ctx, id, status, now)
	if errors.Is(err, ErrNoConsultant) {
		return nil, newError(CodeInvalidInput, "The applicant has no consultant profile.", err)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(CodeAlreadyReviewed, "This submission has already been reviewed.", nil)
	}
	reviewed := time.Unix(now.Unix(), 0).UTC()
	v.Status = status
	v.ReviewedAt = &reviewed
	s.logger.Info("verification reviewed", zap.String("id", id), zap.String("status", string(status)))
	return v, nil
}

func (s *Service) get(ctx context.Context, id string) (*Verification, error) {
	v, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(CodeNotFound, "Submission not found.", err)
	}
	return v, err
}

func (s *Service) countPages(name string) (int, error) {
	path, err := s.files.Path(name)
	if err != nil {
		return 0, err
	}
	pages, err := pdfapi.PageCountFile(path)
	if err != nil {
		return 0, newError(CodeInvalidDocument, "The PDF could not be read.", err)
	}
	if s.limits.MaxPages > 0 && pages > s.limits.MaxPages {
		return 0, newError(CodeLimitExceeded, "The PDF has too many pages.", nil)
	}
	return pages, nil
}

func (s *Service) discard(ctx context.Context, name string) {
	if err := s.files.Delete(ctx, name); err != nil {
		s.logger.Warn("failed to delete rejected document", zap.String("name", name), zap.Error(err))
	}
}
