package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/davron/realnews/internal/model"
)

// articleColumns は記事取得クエリで共通して使用するカラム並び。
const articleColumns = `id, title, slug, description, content, image_url,
       source_url, source_name, category_id, published_at, created_at,
       views, likes, is_breaking, is_featured`

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	return scanArticle(row)
}

// FindBySlug はスラッグで記事を検索する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindBySlug(ctx context.Context, slug string) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE slug = $1`, slug)
	return scanArticle(row)
}

// FindBySourceURL は取り込み元URLで記事を検索する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindBySourceURL(ctx context.Context, sourceURL string) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE source_url = $1`, sourceURL)
	return scanArticle(row)
}

// Create は記事を挿入する。source_urlの一意制約と衝突した場合は挿入せず
// falseを返す。重複判定と挿入が競合しても二重登録は発生しない。
func (r *PostgresArticleRepo) Create(ctx context.Context, article *model.Article) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, title, slug, description, content, image_url,
		                       source_url, source_name, category_id, published_at,
		                       created_at, views, likes, is_breaking, is_featured)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (source_url) DO NOTHING`,
		article.ID, article.Title, article.Slug,
		nullString(article.Description), nullString(article.Content),
		nullString(article.ImageURL), article.SourceURL, article.SourceName,
		article.CategoryID, article.PublishedAt, article.CreatedAt,
		article.Views, article.Likes, article.IsBreaking, article.IsFeatured,
	)
	if err != nil {
		return false, fmt.Errorf("記事の挿入に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("挿入結果の確認に失敗しました: %w", err)
	}

	return affected > 0, nil
}

// List は記事一覧をpublished_at降順で返す。
func (r *PostgresArticleRepo) List(ctx context.Context, limit, offset int) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles
		 ORDER BY published_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ListByCategory はカテゴリ内の記事一覧をpublished_at降順で返す。
func (r *PostgresArticleRepo) ListByCategory(ctx context.Context, categoryID string, limit, offset int) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles
		 WHERE category_id = $1
		 ORDER BY published_at DESC LIMIT $2 OFFSET $3`, categoryID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ別記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ListFeatured は注目記事の一覧を返す。
func (r *PostgresArticleRepo) ListFeatured(ctx context.Context, limit int) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles
		 WHERE is_featured ORDER BY published_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("注目記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ListBreaking は速報記事の一覧を返す。
func (r *PostgresArticleRepo) ListBreaking(ctx context.Context, limit int) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles
		 WHERE is_breaking ORDER BY published_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("速報記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ListTrending は指定期間内の記事を閲覧数降順で返す。
func (r *PostgresArticleRepo) ListTrending(ctx context.Context, since time.Time, limit int) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles
		 WHERE published_at >= $1
		 ORDER BY views DESC, published_at DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("トレンド記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// Search はタイトルと概要の部分一致で記事を検索する。
func (r *PostgresArticleRepo) Search(ctx context.Context, query string, limit int) ([]*model.Article, error) {
	pattern := "%" + query + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles
		 WHERE title ILIKE $1 OR description ILIKE $1
		 ORDER BY published_at DESC LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("記事の検索に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// IncrementViews は記事の閲覧数を1増やす。
func (r *PostgresArticleRepo) IncrementViews(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("閲覧数の更新に失敗しました: %w", err)
	}
	return nil
}

// IncrementLikes は記事のいいね数を1増やし、更新後の値を返す。
func (r *PostgresArticleRepo) IncrementLikes(ctx context.Context, id string) (int, error) {
	var likes int
	err := r.db.QueryRowContext(ctx,
		`UPDATE articles SET likes = likes + 1 WHERE id = $1 RETURNING likes`, id,
	).Scan(&likes)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("記事が見つかりません: %s", id)
	}
	if err != nil {
		return 0, fmt.Errorf("いいね数の更新に失敗しました: %w", err)
	}
	return likes, nil
}

// SetBreaking は速報フラグを更新する。
func (r *PostgresArticleRepo) SetBreaking(ctx context.Context, id string, isBreaking bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET is_breaking = $2 WHERE id = $1`, id, isBreaking)
	if err != nil {
		return fmt.Errorf("速報フラグの更新に失敗しました: %w", err)
	}
	return nil
}

// SetFeatured は注目フラグを更新する。
func (r *PostgresArticleRepo) SetFeatured(ctx context.Context, id string, isFeatured bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET is_featured = $2 WHERE id = $1`, id, isFeatured)
	if err != nil {
		return fmt.Errorf("注目フラグの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの記事を削除する。
func (r *PostgresArticleRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	return nil
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanArticle は1行を記事にスキャンする。ErrNoRowsの場合は(nil, nil)を返す。
func scanArticle(row rowScanner) (*model.Article, error) {
	article := &model.Article{}
	var description, content, imageURL sql.NullString

	err := row.Scan(
		&article.ID, &article.Title, &article.Slug, &description, &content,
		&imageURL, &article.SourceURL, &article.SourceName, &article.CategoryID,
		&article.PublishedAt, &article.CreatedAt,
		&article.Views, &article.Likes, &article.IsBreaking, &article.IsFeatured,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}

	article.Description = description.String
	article.Content = content.String
	article.ImageURL = imageURL.String

	return article, nil
}

// scanArticles は複数行を記事スライスにスキャンする。
func scanArticles(rows *sql.Rows) ([]*model.Article, error) {
	var articles []*model.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の読み取りに失敗しました: %w", err)
	}
	return articles, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
