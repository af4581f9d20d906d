package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session はクライアントのセッションIDと発行済みアクセストークンを結び付けるサーバー側の記録です。
// ExpiresAt は記録自体の有効期限で、トークンの有効期限より後に設定します。
type Session struct {
	ID          string    `json:"id"`
	AccessToken string    `json:"accessToken"`
	Username    string    `json:"username"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// SessionStore はサーバー側セッションの保存先です。
// 期限切れのセッションは存在しないものとして扱い、Get は (nil, nil) を返します。
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// NewSessionID は推測困難なセッションIDを生成します。
func NewSessionID() string {
	return uuid.NewString()
}

func validateSession(s *Session) error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}
	if s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	return nil
}

// MemorySessionStore はプロセス内に保持するセッションストアです。
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewMemorySessionStore は空のストアを作成します。
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Save はセッションを作成または上書きします。
func (m *MemorySessionStore) Save(ctx context.Context, s *Session) error {
	if err := validateSession(s); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

// WithClock は有効期限の判定に使う時計を差し替えます。
func (m *MemorySessionStore) WithClock(now func() time.Time) *MemorySessionStore {
	m.now = now
	return m
}

// Get はセッションを返します。期限切れの記録はこの時点で削除します。
func (m *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}

	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if !s.ExpiresAt.IsZero() && !m.now().Before(s.ExpiresAt) {
		m.mu.Lock()
		if cur, ok := m.sessions[id]; ok && cur.ExpiresAt.Equal(s.ExpiresAt) {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		return nil, nil
	}
	return &s, nil
}

// Delete はセッションを削除します。存在しない場合も成功します。
func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len は保持しているセッション数を返します（期限切れを含む）。
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
