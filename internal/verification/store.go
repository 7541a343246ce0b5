package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status は審査状況です。
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus は文字列を Status に変換します。空文字は ok=true でゼロ値を返します（全件）。
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case "", StatusPending, StatusApproved, StatusRejected:
		return Status(s), true
	default:
		return "", false
	}
}

// Verification はコンサルタントの資格証明の申請です。
type Verification struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	ContactNumber string     `json:"contactNumber"`
	Expertise     string     `json:"expertise"`
	Workplace     string     `json:"workplace"`
	Qualification string     `json:"qualification"`
	Document      string     `json:"-"`
	MimeType      string     `json:"mimeType"`
	Size          int64      `json:"size"`
	Pages         int        `json:"pages"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
}

// SQLStore は申請を SQLite に保存します。
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore は SQLStore を作成します。
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `CREATE TABLE IF NOT EXISTS verifications (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	contact_number TEXT NOT NULL,
	expertise      TEXT NOT NULL,
	workplace      TEXT NOT NULL DEFAULT '',
	qualification  TEXT NOT NULL,
	document       TEXT NOT NULL,
	mime_type      TEXT NOT NULL,
	size           INTEGER NOT NULL,
	pages          INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at     INTEGER NOT NULL,
	reviewed_at    INTEGER
)`

// Migrate は verifications テーブルを作成します。users と consultants テーブルが先に必要です。
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate verifications: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_verifications_status ON verifications (status, created_at)`); err != nil {
		return fmt.Errorf("failed to migrate verifications: %w", err)
	}
	return nil
}

// Create は申請を保存します。
func (s *SQLStore) Create(ctx context.Context, v *Verification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verifications (id, user_id, contact_number, expertise, workplace, qualification, document, mime_type, size, pages, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.UserID, v.ContactNumber, v.Expertise, v.Workplace, v.Qualification,
		v.Document, v.MimeType, v.Size, v.Pages, string(v.Status), v.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert verification: %w", err)
	}
	return nil
}

const columns = `id, user_id, contact_number, expertise, workplace, qualification, document, mime_type, size, pages, status, created_at, reviewed_at`

// Get は ID で申請を取得します。
func (s *SQLStore) Get(ctx context.Context, id string) (*Verification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM verifications WHERE id = ?`, id)
	v, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// List は申請を新しい順に返します。status が空なら全件です。
func (s *SQLStore) List(ctx context.Context, status Status) ([]*Verification, error) {
	query := `SELECT ` + columns + ` FROM verifications`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}
	defer rows.Close()

	list := make([]*Verification, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

// ErrNoConsultant は承認対象の申請者にコンサルタントのプロフィールがない場合に返されます。
var ErrNoConsultant = errors.New("verification: consultant profile not found")

// Review は保留中の申請の状態を更新します。保留中でなければ更新せず false を返します。
// 承認の場合はコンサルタントの検証済みフラグも同じトランザクションで更新し、
// どちらかが失敗すれば両方とも取り消します。
func (s *SQLStore) Review(ctx context.Context, id string, status Status, at time.Time) (ok bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !ok {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE verifications SET status = ?, reviewed_at = ? WHERE id = ? AND status = ?`,
		string(status), at.Unix(), id, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to update verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n != 1 {
		return false, nil
	}

	if status == StatusApproved {
		res, err = tx.ExecContext(ctx,
			`UPDATE consultants SET is_verified = 1 WHERE user_id = (SELECT user_id FROM verifications WHERE id = ?)`, id)
		if err != nil {
			return false, fmt.Errorf("failed to verify consultant: %w", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return false, err
		}
		if n != 1 {
			return false, ErrNoConsultant
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*Verification, error) {
	var (
		v          Verification
		status     string
		createdAt  int64
		reviewedAt sql.NullInt64
	)
	if err := row.Scan(&v.ID, &v.UserID, &v.ContactNumber, &v.Expertise, &v.Workplace, &v.Qualification,
		&v.Document, &v.MimeType, &v.Size, &v.Pages, &status, &createdAt, &reviewedAt); err != nil {
		return nil, err
	}
	v.Status = Status(status)
	v.CreatedAt = time.Unix(createdAt, 0).UTC()
	if reviewedAt.Valid {
		t := time.Unix(reviewedAt.Int64, 0).UTC()
		v.ReviewedAt = &t
	}
	return &v, nil
}
