package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davron/realnews/internal/model"
)

// PostgresNewsletterRepo はPostgreSQLを使用したニュースレター購読者リポジトリ。
type PostgresNewsletterRepo struct {
	db *sql.DB
}

// NewPostgresNewsletterRepo はPostgresNewsletterRepoを生成する。
func NewPostgresNewsletterRepo(db *sql.DB) *PostgresNewsletterRepo {
	return &PostgresNewsletterRepo{db: db}
}

// Subscribe はメールアドレスを冪等に登録する。既存の場合は再有効化する。
func (r *PostgresNewsletterRepo) Subscribe(ctx context.Context, email string) (*model.Newsletter, error) {
	sub := &model.Newsletter{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO newsletters (id, email, is_active, created_at)
		 VALUES ($1, $2, TRUE, $3)
		 ON CONFLICT (email) DO UPDATE SET is_active = TRUE
		 RETURNING id, email, is_active, created_at`,
		uuid.New().String(), email, time.Now(),
	).Scan(&sub.ID, &sub.Email, &sub.IsActive, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ニュースレター購読の登録に失敗しました: %w", err)
	}
	return sub, nil
}

// List は全購読者を返す。
func (r *PostgresNewsletterRepo) List(ctx context.Context) ([]*model.Newsletter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, is_active, created_at FROM newsletters ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.Newsletter
	for rows.Next() {
		sub := &model.Newsletter{}
		if err := rows.Scan(&sub.ID, &sub.Email, &sub.IsActive, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("購読者の取得に失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読者一覧の読み取りに失敗しました: %w", err)
	}
	return subs, nil
}
