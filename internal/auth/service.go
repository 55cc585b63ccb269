// Package auth はパスワード認証とセッショントークンの発行・検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/kakeibo/internal/metrics"
	"github.com/hitoshi/kakeibo/internal/model"
	"github.com/hitoshi/kakeibo/internal/repository"
)

// 表示名の長さ制約（文字数）
const (
	MinNameLength = 2
	MaxNameLength = 50
)

// dummyPassword はユーザー不在時の照合に使うダミーパスワード。
const dummyPassword = "kakeibo-dummy-password"

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	metrics  metrics.MetricsCollector
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
		metrics:  mc,
		now:      time.Now,
	}
}

// Register は新規ユーザーを登録し、トークンを発行する。
// 入力の違反はすべて1つのValidationErrorにまとめて返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, string, error) {
	name := strings.TrimSpace(in.Name)
	email := model.NormalizeEmail(in.Email)

	// 1. 入力検証
	if msgs := validateRegistration(name, email, in.Password); len(msgs) > 0 {
		return nil, "", model.NewValidationError(msgs...)
	}

	// 2. 既存ユーザーの確認
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return nil, "", model.NewDuplicateEmailError()
	}

	// 3. パスワードのハッシュ化とユーザー作成
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate user ID: %w", err)
	}
	now := s.now().UTC()
	user := &model.User{
		ID:           id.String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// 確認後に同じメールアドレスが登録された場合
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, "", model.NewDuplicateEmailError()
		}
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	// 4. トークン発行
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}

	s.metrics.RecordUserRegistered()
	slog.Info("user registered", slog.String("user_id", user.ID))

	return user, token, nil
}

// Authenticate はメールアドレスとパスワードで認証し、トークンを発行する。
// ユーザー不在とパスワード不一致は区別せず、同じInvalidCredentialsErrorを返す。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, string, error) {
	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", model.NewValidationError("Please provide email and password")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user by email: %w", err)
	}

	if user == nil {
		// 応答時間からユーザーの存在を推測されないよう、ダミーハッシュと照合する
		if _, err := s.hasher.Compare(s.dummyPasswordHash(), password); err != nil {
			slog.Warn("dummy password comparison failed", slog.String("error", err.Error()))
		}
		s.metrics.RecordLoginFailure()
		return nil, "", model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		s.metrics.RecordLoginFailure()
		slog.Info("login failed", slog.String("user_id", user.ID))
		return nil, "", model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return user, token, nil
}

// VerifyToken はトークンを検証し、ユーザーIDを返す。
// 空のトークンはMissingTokenError、それ以外の検証失敗はInvalidTokenErrorを返す。
func (s *Service) VerifyToken(token string) (string, error) {
	if token == "" {
		return "", model.NewMissingTokenError()
	}
	userID, err := s.tokens.Verify(token)
	if err != nil {
		slog.Debug("token verification failed", slog.String("error", err.Error()))
		return "", model.NewInvalidTokenError()
	}
	return userID, nil
}

// GetUser は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// dummyPasswordHash はダミー照合用のハッシュを返す。初回呼び出し時に生成する。
func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			slog.Error("failed to generate dummy hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// validateRegistration は登録入力を検証し、違反メッセージの一覧を返す。
// nameとemailは正規化済みであること。
func validateRegistration(name, email, password string) []string {
	var msgs []string

	if name == "" || email == "" || password == "" {
		msgs = append(msgs, "Please provide all required fields: name, email, password")
	}

	if name != "" {
		if n := utf8.RuneCountInString(name); n < MinNameLength || n > MaxNameLength {
			msgs = append(msgs, fmt.Sprintf("Name must be between %d and %d characters", MinNameLength, MaxNameLength))
		}
	}

	if email != "" && !isValidEmail(email) {
		msgs = append(msgs, "Please provide a valid email address")
	}

	if password != "" {
		if utf8.RuneCountInString(password) < MinPasswordLength {
			msgs = append(msgs, fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
		}
		if len(password) > MaxPasswordBytes {
			msgs = append(msgs, fmt.Sprintf("Password must be at most %d bytes", MaxPasswordBytes))
		}
	}

	return msgs
}

// isValidEmail は表示名を含まない単一のメールアドレスかどうかを判定する。
func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	if addr.Address != email {
		return false
	}
	// ドメイン部にドットを要求する
	domain := email[strings.LastIndex(email, "@")+1:]
	return strings.Contains(domain, ".")
}
