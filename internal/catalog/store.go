// Package catalog は書籍カタログの参照と、書籍に付随するレビューの保存を提供します。
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrBookNotFound は指定された ISBN の書籍が存在しないことを表します。
var ErrBookNotFound = errors.New("book not found")

//go:embed books.json
var seedBooks []byte

// Book は書籍情報です。Reviews はユーザー名からレビュー本文への対応です。
type Book struct {
	ISBN    string            `json:"isbn"`
	Author  string            `json:"author"`
	Title   string            `json:"title"`
	Reviews map[string]string `json:"reviews"`
}

// Store は書籍カタログのインターフェースです。書籍情報自体は読み取り専用です。
type Store interface {
	List(ctx context.Context) ([]Book, error)
	Get(ctx context.Context, isbn string) (*Book, error)
	FindByAuthor(ctx context.Context, author string) ([]Book, error)
	FindByTitle(ctx context.Context, title string) ([]Book, error)
	Reviews(ctx context.Context, isbn string) (map[string]string, error)
	// UpdateReviews は ISBN 単位のロックを保持したまま fn を実行し、更新後のレビューの複製を返します。
	// fn がエラーを返した場合、fn 内で行った変更は破棄されます。
	UpdateReviews(ctx context.Context, isbn string, fn func(reviews map[string]string) error) (map[string]string, error)
}

type entry struct {
	mu      sync.RWMutex
	book    Book
	reviews map[string]string
}

// MemoryStore はプロセス内で書籍とレビューを保持する Store の実装です。
// 書籍の集合は作成時に固定され、以降はレビューのみが変化します。
type MemoryStore struct {
	entries map[string]*entry
	order   []string
}

// NewMemoryStore は books から MemoryStore を作成します。ISBN の重複はエラーです。
func NewMemoryStore(books []Book) (*MemoryStore, error) {
	s := &MemoryStore{entries: make(map[string]*entry, len(books))}
	for _, b := range books {
		if b.ISBN == "" {
			return nil, fmt.Errorf("book %q has no isbn", b.Title)
		}
		if _, dup := s.entries[b.ISBN]; dup {
			return nil, fmt.Errorf("duplicate isbn %q", b.ISBN)
		}
		reviews := copyReviews(b.Reviews)
		b.Reviews = nil
		s.entries[b.ISBN] = &entry{book: b, reviews: reviews}
		s.order = append(s.order, b.ISBN)
	}
	sort.Strings(s.order)
	return s, nil
}

// LoadSeed は埋め込みの初期カタログを読み込みます。
func LoadSeed() ([]Book, error) {
	var books []Book
	if err := json.Unmarshal(seedBooks, &books); err != nil {
		return nil, fmt.Errorf("parse seed catalog: %w", err)
	}
	return books, nil
}

// NewSeededStore は初期カタログを持つ MemoryStore を作成します。
func NewSeededStore() (*MemoryStore, error) {
	books, err := LoadSeed()
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(books)
}

func (s *MemoryStore) lookup(isbn string) (*entry, error) {
	e, ok := s.entries[isbn]
	if !ok {
		return nil, fmt.Errorf("isbn %q: %w", isbn, ErrBookNotFound)
	}
	return e, nil
}

func (e *entry) snapshot() Book {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b := e.book
	b.Reviews = copyReviews(e.reviews)
	return b
}

// List は ISBN 順に全書籍を返します。
func (s *MemoryStore) List(ctx context.Context) ([]Book, error) {
	return s.filter(ctx, func(Book) bool { return true })
}

// Get は ISBN に一致する書籍を返します。
func (s *MemoryStore) Get(ctx context.Context, isbn string) (*Book, error) {
	e, err := s.lookup(isbn)
	if err != nil {
		return nil, err
	}
	b := e.snapshot()
	return &b, nil
}

// FindByAuthor は著者名が完全一致する書籍を返します。
func (s *MemoryStore) FindByAuthor(ctx context.Context, author string) ([]Book, error) {
	return s.filter(ctx, func(b Book) bool { return b.Author == author })
}

// FindByTitle は書名が完全一致する書籍を返します。
func (s *MemoryStore) FindByTitle(ctx context.Context, title string) ([]Book, error) {
	return s.filter(ctx, func(b Book) bool { return b.Title == title })
}

func (s *MemoryStore) filter(ctx context.Context, match func(Book) bool) ([]Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make([]Book, 0)
	for _, isbn := range s.order {
		e := s.entries[isbn]
		if !match(e.book) {
			continue
		}
		result = append(result, e.snapshot())
	}
	return result, nil
}

// Reviews は書籍のレビューの複製を返します。レビューがない場合は空のマップです。
func (s *MemoryStore) Reviews(ctx context.Context, isbn string) (map[string]string, error) {
	e, err := s.lookup(isbn)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyReviews(e.reviews), nil
}

// UpdateReviews は fn に作業用の複製を渡し、成功した場合のみ反映します。
func (s *MemoryStore) UpdateReviews(ctx context.Context, isbn string, fn func(reviews map[string]string) error) (map[string]string, error) {
	e, err := s.lookup(isbn)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := copyReviews(e.reviews)
	if err := fn(working); err != nil {
		return nil, err
	}
	e.reviews = working
	return copyReviews(working), nil
}

func copyReviews(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
