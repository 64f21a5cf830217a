package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/davron/realnews/internal/model"
)

// PostgresFeedSourceRepo はPostgreSQLを使用したRSSフィード設定リポジトリ。
type PostgresFeedSourceRepo struct {
	db *sql.DB
}

// NewPostgresFeedSourceRepo はPostgresFeedSourceRepoを生成する。
func NewPostgresFeedSourceRepo(db *sql.DB) *PostgresFeedSourceRepo {
	return &PostgresFeedSourceRepo{db: db}
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedSourceRepo) FindByID(ctx context.Context, id string) (*model.FeedSource, error) {
	return scanFeedSource(r.db.QueryRowContext(ctx,
		`SELECT id, url, name, category_id, is_active, last_fetched_at, created_at
		 FROM rss_feeds WHERE id = $1`, id))
}

// FindByURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
func (r *PostgresFeedSourceRepo) FindByURL(ctx context.Context, url string) (*model.FeedSource, error) {
	return scanFeedSource(r.db.QueryRowContext(ctx,
		`SELECT id, url, name, category_id, is_active, last_fetched_at, created_at
		 FROM rss_feeds WHERE url = $1`, url))
}

// ListActive は有効なフィードを登録順で返す。
func (r *PostgresFeedSourceRepo) ListActive(ctx context.Context) ([]*model.FeedSource, error) {
	return r.list(ctx,
		`SELECT id, url, name, category_id, is_active, last_fetched_at, created_at
		 FROM rss_feeds WHERE is_active ORDER BY created_at`)
}

// List は全フィードを登録順で返す。
func (r *PostgresFeedSourceRepo) List(ctx context.Context) ([]*model.FeedSource, error) {
	return r.list(ctx,
		`SELECT id, url, name, category_id, is_active, last_fetched_at, created_at
		 FROM rss_feeds ORDER BY created_at`)
}

func (r *PostgresFeedSourceRepo) list(ctx context.Context, query string) ([]*model.FeedSource, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.FeedSource
	for rows.Next() {
		feed, err := scanFeedSource(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィード一覧の読み取りに失敗しました: %w", err)
	}
	return feeds, nil
}

// Create はフィードを作成する。
func (r *PostgresFeedSourceRepo) Create(ctx context.Context, feed *model.FeedSource) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rss_feeds (id, url, name, category_id, is_active, last_fetched_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		feed.ID, feed.URL, feed.Name, feed.CategoryID,
		feed.IsActive, feed.LastFetchedAt, feed.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードの作成に失敗しました: %w", err)
	}
	return nil
}

// TouchLastFetched はフィードの最終取得日時を更新する。
func (r *PostgresFeedSourceRepo) TouchLastFetched(ctx context.Context, id string, ts time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rss_feeds SET last_fetched_at = $2 WHERE id = $1`, id, ts)
	if err != nil {
		return fmt.Errorf("最終取得日時の更新に失敗しました: %w", err)
	}
	return nil
}

// scanFeedSource は1行をフィードにスキャンする。ErrNoRowsの場合は(nil, nil)を返す。
func scanFeedSource(row rowScanner) (*model.FeedSource, error) {
	feed := &model.FeedSource{}
	var lastFetchedAt sql.NullTime

	err := row.Scan(
		&feed.ID, &feed.URL, &feed.Name, &feed.CategoryID,
		&feed.IsActive, &lastFetchedAt, &feed.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}

	if lastFetchedAt.Valid {
		t := lastFetchedAt.Time
		feed.LastFetchedAt = &t
	}

	return feed, nil
}
