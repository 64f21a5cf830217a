package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/davron/realnews/internal/ingest"
	"github.com/davron/realnews/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeArticleRepo はハンドラーテスト用のArticleRepository。
type fakeArticleRepo struct {
	articles     []*model.Article
	views        map[string]int
	likes        map[string]int
	breaking     map[string]bool
	featured     map[string]bool
	deleted      []string
	incrementErr error
}

func newFakeArticleRepo(articles ...*model.Article) *fakeArticleRepo {
	return &fakeArticleRepo{
		articles: articles,
		views:    make(map[string]int),
		likes:    make(map[string]int),
		breaking: make(map[string]bool),
		featured: make(map[string]bool),
	}
}

func (f *fakeArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	for _, a := range f.articles {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeArticleRepo) FindBySlug(ctx context.Context, slug string) (*model.Article, error) {
	for _, a := range f.articles {
		if a.Slug == slug {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeArticleRepo) FindBySourceURL(ctx context.Context, sourceURL string) (*model.Article, error) {
	return nil, nil
}

func (f *fakeArticleRepo) Create(ctx context.Context, article *model.Article) (bool, error) {
	f.articles = append(f.articles, article)
	return true, nil
}

func (f *fakeArticleRepo) List(ctx context.Context, limit, offset int) ([]*model.Article, error) {
	if offset >= len(f.articles) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.articles) {
		end = len(f.articles)
	}
	return f.articles[offset:end], nil
}

func (f *fakeArticleRepo) ListByCategory(ctx context.Context, categoryID string, limit, offset int) ([]*model.Article, error) {
	var out []*model.Article
	for _, a := range f.articles {
		if a.CategoryID == categoryID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeArticleRepo) ListFeatured(ctx context.Context, limit int) ([]*model.Article, error) {
	var out []*model.Article
	for _, a := range f.articles {
		if a.IsFeatured {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeArticleRepo) ListBreaking(ctx context.Context, limit int) ([]*model.Article, error) {
	var out []*model.Article
	for _, a := range f.articles {
		if a.IsBreaking {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeArticleRepo) ListTrending(ctx context.Context, since time.Time, limit int) ([]*model.Article, error) {
	return f.articles, nil
}

func (f *fakeArticleRepo) Search(ctx context.Context, query string, limit int) ([]*model.Article, error) {
	return f.articles, nil
}

func (f *fakeArticleRepo) IncrementViews(ctx context.Context, id string) error {
	if f.incrementErr != nil {
		return f.incrementErr
	}
	f.views[id]++
	return nil
}

func (f *fakeArticleRepo) IncrementLikes(ctx context.Context, id string) (int, error) {
	f.likes[id]++
	return f.likes[id], nil
}

func (f *fakeArticleRepo) SetBreaking(ctx context.Context, id string, isBreaking bool) error {
	f.breaking[id] = isBreaking
	return nil
}

func (f *fakeArticleRepo) SetFeatured(ctx context.Context, id string, isFeatured bool) error {
	f.featured[id] = isFeatured
	return nil
}

func (f *fakeArticleRepo) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

// fakeCategoryRepo はハンドラーテスト用のCategoryRepository。
type fakeCategoryRepo struct {
	categories []*model.Category
}

func (f *fakeCategoryRepo) FindByID(ctx context.Context, id string) (*model.Category, error) {
	for _, c := range f.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeCategoryRepo) FindBySlug(ctx context.Context, slug string) (*model.Category, error) {
	for _, c := range f.categories {
		if c.Slug == slug {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeCategoryRepo) List(ctx context.Context) ([]*model.Category, error) {
	return f.categories, nil
}

// fakeFeedRepo はハンドラーテスト用のFeedSourceRepository。
type fakeFeedRepo struct {
	feeds []*model.FeedSource
}

func (f *fakeFeedRepo) FindByID(ctx context.Context, id string) (*model.FeedSource, error) {
	for _, feed := range f.feeds {
		if feed.ID == id {
			return feed, nil
		}
	}
	return nil, nil
}

func (f *fakeFeedRepo) FindByURL(ctx context.Context, url string) (*model.FeedSource, error) {
	for _, feed := range f.feeds {
		if feed.URL == url {
			return feed, nil
		}
	}
	return nil, nil
}

func (f *fakeFeedRepo) ListActive(ctx context.Context) ([]*model.FeedSource, error) {
	return f.feeds, nil
}

func (f *fakeFeedRepo) List(ctx context.Context) ([]*model.FeedSource, error) {
	return f.feeds, nil
}

func (f *fakeFeedRepo) Create(ctx context.Context, feed *model.FeedSource) error {
	f.feeds = append(f.feeds, feed)
	return nil
}

func (f *fakeFeedRepo) TouchLastFetched(ctx context.Context, id string, ts time.Time) error {
	return nil
}

// fakePushRepo はハンドラーテスト用のPushSubscriptionRepository。
type fakePushRepo struct {
	upserted    []*model.PushSubscription
	deactivated []string
}

func (f *fakePushRepo) Upsert(ctx context.Context, sub *model.PushSubscription) error {
	f.upserted = append(f.upserted, sub)
	return nil
}

func (f *fakePushRepo) DeactivateByEndpoint(ctx context.Context, endpoint string) error {
	f.deactivated = append(f.deactivated, endpoint)
	return nil
}

func (f *fakePushRepo) DeleteInactiveBefore(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}

// fakeNewsletterRepo はハンドラーテスト用のNewsletterRepository。
type fakeNewsletterRepo struct {
	subscribed []string
}

func (f *fakeNewsletterRepo) Subscribe(ctx context.Context, email string) (*model.Newsletter, error) {
	f.subscribed = append(f.subscribed, email)
	return &model.Newsletter{ID: "n-1", Email: email, IsActive: true, CreatedAt: time.Now()}, nil
}

func (f *fakeNewsletterRepo) List(ctx context.Context) ([]*model.Newsletter, error) {
	out := make([]*model.Newsletter, 0, len(f.subscribed))
	for _, email := range f.subscribed {
		out = append(out, &model.Newsletter{Email: email, IsActive: true})
	}
	return out, nil
}

// fakePipeline はハンドラーテスト用のPipelineTrigger。
type fakePipeline struct {
	stats ingest.RunStats
	err   error
	runs  int
}

func (f *fakePipeline) RunOnce(ctx context.Context) (ingest.RunStats, error) {
	f.runs++
	return f.stats, f.err
}

// fakeValidator はハンドラーテスト用のURLValidator。
type fakeValidator struct {
	err error
}

func (f *fakeValidator) ValidateURL(rawURL string) error {
	return f.err
}

// fakePinger はハンドラーテスト用のPinger。
type fakePinger struct {
	err error
}

func (f *fakePinger) PingContext(ctx context.Context) error {
	return f.err
}

var errDatabaseDown = errors.New("database down")
