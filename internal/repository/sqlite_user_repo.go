package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/kakeibo/internal/model"
)

// timestampLayout はSQLiteのTEXTカラムに保存する日時の書式。
const timestampLayout = time.RFC3339Nano

// SQLiteUserRepo はSQLiteを使用したユーザーリポジトリ。
// 単一バイナリでの運用やローカル開発向け。
type SQLiteUserRepo struct {
	db *sql.DB
}

// NewSQLiteUserRepo はSQLiteUserRepoを生成する。
func NewSQLiteUserRepo(db *sql.DB) *SQLiteUserRepo {
	return &SQLiteUserRepo{db: db}
}

// Create はユーザーを作成する。
// users.emailのUNIQUE制約に違反した場合はErrDuplicateEmailを返す。
func (r *SQLiteUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash,
		formatTimestamp(user.CreatedAt), formatTimestamp(user.UpdatedAt),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLiteUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at FROM users WHERE id = ?`,
		id,
	)
	user, err := scanSQLiteUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail は正規化済みメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *SQLiteUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at FROM users WHERE email = ?`,
		email,
	)
	user, err := scanSQLiteUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

func scanSQLiteUser(s rowScanner) (*model.User, error) {
	user := &model.User{}
	var createdAt, updatedAt string
	if err := s.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if user.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return user, nil
}

// isSQLiteUniqueViolation はSQLiteのUNIQUE制約違反かどうかを判定する。
func isSQLiteUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// compile-time interface check
var _ UserRepository = (*SQLiteUserRepo)(nil)
