// Package review はログイン中の利用者による書籍レビューの追加・更新・削除を提供します。
package review

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourusername/bookshelf/internal/catalog"
	"github.com/yourusername/bookshelf/internal/middleware"
)

var (
	// ErrNotLoggedIn は操作主体のユーザー名が解決されていないことを表します。
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrEmptyReview はレビュー本文が空であることを表します。
	ErrEmptyReview = errors.New("review text is required")
	// ErrReviewNotFound は削除対象のレビューが存在しないことを表します。
	ErrReviewNotFound = errors.New("review not found")
)

// Ledger はレビューの変更を (isbn, ユーザー名) 単位で行います。
// 各利用者は自分のレビューのみを変更でき、1冊につき1件まで保持します。
type Ledger struct {
	books catalog.Store
}

// NewLedger は Ledger を作成します。
func NewLedger(books catalog.Store) *Ledger {
	return &Ledger{books: books}
}

// Upsert は identity のレビューを作成または上書きし、更新後の全レビューを返します。
func (l *Ledger) Upsert(ctx context.Context, isbn, text, identity string) (map[string]string, error) {
	ctx, span := middleware.StartSpan(ctx, "review.upsert", trace.WithAttributes(
		attribute.String("review.isbn", isbn),
	))
	defer span.End()

	if identity == "" {
		return nil, ErrNotLoggedIn
	}
	if text == "" {
		return nil, ErrEmptyReview
	}

	reviews, err := l.books.UpdateReviews(ctx, isbn, func(r map[string]string) error {
		r[identity] = text
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("upsert review isbn=%s user=%s: %w", isbn, identity, err)
	}
	return reviews, nil
}

// Delete は identity のレビューを削除し、残りのレビューを返します。
// レビューが存在しない場合は何も変更せず ErrReviewNotFound を返します。
func (l *Ledger) Delete(ctx context.Context, isbn, identity string) (map[string]string, error) {
	ctx, span := middleware.StartSpan(ctx, "review.delete", trace.WithAttributes(
		attribute.String("review.isbn", isbn),
	))
	defer span.End()

	if identity == "" {
		return nil, ErrNotLoggedIn
	}

	reviews, err := l.books.UpdateReviews(ctx, isbn, func(r map[string]string) error {
		if _, ok := r[identity]; !ok {
			return ErrReviewNotFound
		}
		delete(r, identity)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("delete review isbn=%s user=%s: %w", isbn, identity, err)
	}
	return reviews, nil
}
