// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/davron/realnews/internal/model"
)

// ArticleRepository は記事データの永続化インターフェース。
type ArticleRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Article, error)

	// FindBySlug はスラッグで記事を検索する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Article, error)

	// FindBySourceURL は取り込み元URLで記事を検索する。見つからない場合はnilを返す。
	// 取り込みパイプラインの重複判定に使用される。
	FindBySourceURL(ctx context.Context, sourceURL string) (*model.Article, error)

	// Create は記事を挿入する。source_urlの一意制約と衝突した場合は
	// 挿入せずfalseを返す（エラーにはしない）。これにより重複判定の
	// check-then-insertが競合しても二重登録は発生しない。
	Create(ctx context.Context, article *model.Article) (inserted bool, err error)

	// List は記事一覧をpublished_at降順で返す。
	List(ctx context.Context, limit, offset int) ([]*model.Article, error)

	// ListByCategory はカテゴリ内の記事一覧をpublished_at降順で返す。
	ListByCategory(ctx context.Context, categoryID string, limit, offset int) ([]*model.Article, error)

	// ListFeatured は注目記事の一覧を返す。
	ListFeatured(ctx context.Context, limit int) ([]*model.Article, error)

	// ListBreaking は速報記事の一覧を返す。
	ListBreaking(ctx context.Context, limit int) ([]*model.Article, error)

	// ListTrending は指定期間内の記事を閲覧数降順で返す。
	ListTrending(ctx context.Context, since time.Time, limit int) ([]*model.Article, error)

	// Search はタイトルと概要の部分一致で記事を検索する。
	Search(ctx context.Context, query string, limit int) ([]*model.Article, error)

	// IncrementViews は記事の閲覧数を1増やす。
	IncrementViews(ctx context.Context, id string) error

	// IncrementLikes は記事のいいね数を1増やし、更新後の値を返す。
	IncrementLikes(ctx context.Context, id string) (int, error)

	// SetBreaking は速報フラグを更新する。管理者操作専用。
	SetBreaking(ctx context.Context, id string, isBreaking bool) error

	// SetFeatured は注目フラグを更新する。管理者操作専用。
	SetFeatured(ctx context.Context, id string, isFeatured bool) error

	// Delete は指定IDの記事を削除する。
	Delete(ctx context.Context, id string) error
}

// CategoryRepository はカテゴリデータの永続化インターフェース。
type CategoryRepository interface {
	// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Category, error)

	// FindBySlug はスラッグでカテゴリを検索する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Category, error)

	// List は全カテゴリを名前順で返す。
	List(ctx context.Context) ([]*model.Category, error)
}

// FeedSourceRepository はRSSフィード設定の永続化インターフェース。
type FeedSourceRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.FeedSource, error)

	// FindByURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, url string) (*model.FeedSource, error)

	// ListActive は有効なフィードを登録順で返す。パイプラインの取り込み対象。
	ListActive(ctx context.Context) ([]*model.FeedSource, error)

	// List は全フィードを登録順で返す。
	List(ctx context.Context) ([]*model.FeedSource, error)

	// Create はフィードを作成する。
	Create(ctx context.Context, feed *model.FeedSource) error

	// TouchLastFetched はフィードの最終取得日時を更新する。
	// パイプラインがフィードを変更する唯一の操作。
	TouchLastFetched(ctx context.Context, id string, ts time.Time) error
}

// PushSubscriptionRepository はWebプッシュ購読の永続化インターフェース。
type PushSubscriptionRepository interface {
	// Upsert はエンドポイントをキーに購読を冪等に登録する。
	Upsert(ctx context.Context, sub *model.PushSubscription) error

	// DeactivateByEndpoint は指定エンドポイントの購読を無効化する。
	DeactivateByEndpoint(ctx context.Context, endpoint string) error

	// DeleteInactiveBefore は指定日時より前に登録され、無効化された購読を削除する。
	// クリーンアップジョブから使用される。削除件数を返す。
	DeleteInactiveBefore(ctx context.Context, before time.Time) (int, error)
}

// NewsletterRepository はニュースレター購読者の永続化インターフェース。
type NewsletterRepository interface {
	// Subscribe はメールアドレスを冪等に登録する。既存の場合は再有効化する。
	Subscribe(ctx context.Context, email string) (*model.Newsletter, error)

	// List は全購読者を返す。
	List(ctx context.Context) ([]*model.Newsletter, error)
}
