package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Store は利用者とプロフィールの永続化を担います。
type Store interface {
	CreateUser(ctx context.Context, user *User, profile Profile) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	NameExists(ctx context.Context, firstName, lastName string) (bool, error)
	Activate(ctx context.Context, userID string) error
	Consultant(ctx context.Context, userID string) (*ConsultantProfile, error)
}

// SQLStore は SQLite 上の Store 実装です。
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore は SQLStore を作成します。
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
		first_name    TEXT NOT NULL,
		last_name     TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL,
		is_active     INTEGER NOT NULL DEFAULT 0,
		is_staff      INTEGER NOT NULL DEFAULT 0,
		created_at    INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_name ON users (first_name COLLATE NOCASE, last_name COLLATE NOCASE)`,
	`CREATE TABLE IF NOT EXISTS students (
		user_id            TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		year_level         INTEGER NOT NULL DEFAULT 0,
		department         TEXT NOT NULL DEFAULT '',
		course             TEXT NOT NULL DEFAULT '',
		program            TEXT NOT NULL DEFAULT '',
		sessions_completed INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS consultants (
		user_id        TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		contact_number TEXT NOT NULL DEFAULT '',
		expertise      TEXT NOT NULL DEFAULT '',
		workplace      TEXT NOT NULL DEFAULT '',
		is_verified    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS admins (
		user_id        TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		contact_number TEXT NOT NULL DEFAULT ''
	)`,
}

// Migrate は必要なテーブルを作成します。
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate accounts: %w", err)
		}
	}
	return nil
}

// CreateUser は利用者とロール別プロフィールを1トランザクションで保存します。
func (s *SQLStore) CreateUser(ctx context.Context, user *User, profile Profile) (err error) {
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, password_hash, role, is_active, is_staff, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.FirstName, user.LastName, user.PasswordHash,
		string(user.Role), boolToInt(user.Active), boolToInt(user.Staff), user.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	switch user.Role {
	case RoleStudent:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO students (user_id, year_level, department, course, program) VALUES (?, ?, ?, ?, ?)`,
			user.ID, profile.YearLevel, profile.Department, profile.Course, profile.Program)
	case RoleConsultant:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO consultants (user_id, contact_number, expertise, workplace, is_verified) VALUES (?, ?, ?, ?, 0)`,
			user.ID, profile.ContactNumber, profile.Expertise, profile.Workplace)
	case RoleAdmin:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO admins (user_id, contact_number) VALUES (?, ?)`,
			user.ID, profile.ContactNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s profile: %w", user.Role, err)
	}

	return tx.Commit()
}

const userColumns = `id, email, first_name, last_name, password_hash, role, is_active, is_staff, created_at`

// FindByEmail はメールアドレス（大文字小文字無視）で利用者を探します。
func (s *SQLStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email)
	return scanUser(row)
}

// FindByID は ID で利用者を探します。
func (s *SQLStore) FindByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// EmailExists はメールアドレスが登録済みかを返します。
func (s *SQLStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email = ? COLLATE NOCASE`, email).Scan(&n)
	return n > 0, err
}

// NameExists は同じ姓名の利用者がいるかを返します。
func (s *SQLStore) NameExists(ctx context.Context, firstName, lastName string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM users WHERE first_name = ? COLLATE NOCASE AND last_name = ? COLLATE NOCASE`,
		firstName, lastName).Scan(&n)
	return n > 0, err
}

// Activate は利用者を有効化します。
func (s *SQLStore) Activate(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = 1 WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// Consultant はコンサルタントのプロフィールを返します。
func (s *SQLStore) Consultant(ctx context.Context, userID string) (*ConsultantProfile, error) {
	var (
		p        ConsultantProfile
		verified int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, contact_number, expertise, workplace, is_verified FROM consultants WHERE user_id = ?`,
		userID).Scan(&p.UserID, &p.ContactNumber, &p.Expertise, &p.Workplace, &verified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Verified = verified == 1
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		role      string
		active    int
		staff     int
		createdAt int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &role, &active, &staff, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// ロールは検証せずそのまま返す。未知のロールの扱いは呼び出し側が決める
	u.Role = Role(role)
	u.Active = active == 1
	u.Staff = staff == 1
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
