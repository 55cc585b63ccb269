package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// パスワードポリシー
const (
	MinPasswordLength = 6
	// MaxPasswordBytes はbcryptが扱える入力の上限（バイト数）。
	MaxPasswordBytes = 72
)

// PasswordHasher はパスワードの一方向ハッシュ化と照合を行うインターフェース。
type PasswordHasher interface {
	// Hash はパスワードのハッシュを返す。
	Hash(password string) (string, error)
	// Compare はハッシュとパスワードが一致するかを返す。不一致はエラーではない。
	Compare(hash, password string) (bool, error)
}

// BcryptHasher はbcryptによるPasswordHasherの実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。
// costがbcryptの許容範囲外の場合はbcrypt.DefaultCostを使用する。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash はパスワードのbcryptハッシュを返す。
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare はbcryptハッシュとパスワードを照合する。
func (h *BcryptHasher) Compare(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("failed to compare password: %w", err)
}

// compile-time interface check
var _ PasswordHasher = (*BcryptHasher)(nil)
