// Package users はユーザー資格情報の登録と照合を提供します。
package users

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrDuplicateUser は同じユーザー名が既に登録されていることを表します。
	ErrDuplicateUser = errors.New("user already exists")
	// ErrMissingFields はユーザー名またはパスワードが空であることを表します。
	ErrMissingFields = errors.New("username and password are required")
)

// User は登録済みユーザーです。登録後に変更・削除されることはありません。
type User struct {
	Username string
	Password string
}

// Store は資格情報ストアのインターフェースです。
type Store interface {
	// Register はユーザーを登録します。ユーザー名が重複する場合は ErrDuplicateUser を返します。
	Register(ctx context.Context, username, password string) error
	// Verify はユーザー名とパスワードの組が登録済みのものと一致するかを返します。
	Verify(ctx context.Context, username, password string) (bool, error)
}

// MemoryStore はプロセス内で資格情報を保持する Store の実装です。
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]User
}

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

// Register は存在確認と追加を同じロックの中で行います。
func (s *MemoryStore) Register(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return ErrMissingFields
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return fmt.Errorf("register %q: %w", username, ErrDuplicateUser)
	}
	s.users[username] = User{Username: username, Password: password}
	return nil
}

// Verify はセッションを作成も参照もしない純粋な照合です。
func (s *MemoryStore) Verify(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	user, ok := s.users[username]
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) == 1, nil
}
