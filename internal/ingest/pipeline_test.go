package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/davron/realnews/internal/metrics"
	"github.com/davron/realnews/internal/model"
	"github.com/davron/realnews/internal/security"
)

// fakeArticleRepo はパイプラインテスト用のArticleRepository。
type fakeArticleRepo struct {
	bySourceURL map[string]*model.Article
	bySlug      map[string]*model.Article
	created     []*model.Article
	createErr   error
	conflictAll bool // Createを常に衝突扱いにする
}

func newFakeArticleRepo() *fakeArticleRepo {
	return &fakeArticleRepo{
		bySourceURL: make(map[string]*model.Article),
		bySlug:      make(map[string]*model.Article),
	}
}

func (f *fakeArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	return nil, nil
}

func (f *fakeArticleRepo) FindBySlug(ctx context.Context, slug string) (*model.Article, error) {
	return f.bySlug[slug], nil
}

func (f *fakeArticleRepo) FindBySourceURL(ctx context.Context, sourceURL string) (*model.Article, error) {
	return f.bySourceURL[sourceURL], nil
}

func (f *fakeArticleRepo) Create(ctx context.Context, article *model.Article) (bool, error) {
	if f.createErr != nil {
		return false, f.createErr
	}
	if f.conflictAll {
		return false, nil
	}
	if _, exists := f.bySourceURL[article.SourceURL]; exists {
		return false, nil
	}
	f.bySourceURL[article.SourceURL] = article
	f.bySlug[article.Slug] = article
	f.created = append(f.created, article)
	return true, nil
}

func (f *fakeArticleRepo) List(ctx context.Context, limit, offset int) ([]*model.Article, error) {
	return nil, nil
}

func (f *fakeArticleRepo) ListByCategory(ctx context.Context, categoryID string, limit, offset int) ([]*model.Article, error) {
	return nil, nil
}

func (f *fakeArticleRepo) ListFeatured(ctx context.Context, limit int) ([]*model.Article, error) {
	return nil, nil
}

func (f *fakeArticleRepo) ListBreaking(ctx context.Context, limit int) ([]*model.Article, error) {
	return nil, nil
}

func (f *fakeArticleRepo) ListTrending(ctx context.Context, since time.Time, limit int) ([]*model.Article, error) {
	return nil, nil
}

func (f *fakeArticleRepo) Search(ctx context.Context, query string, limit int) ([]*model.Article, error) {
	return nil, nil
}

func (f *fakeArticleRepo) IncrementViews(ctx context.Context, id string) error { return nil }

func (f *fakeArticleRepo) IncrementLikes(ctx context.Context, id string) (int, error) { return 0, nil }

func (f *fakeArticleRepo) SetBreaking(ctx context.Context, id string, isBreaking bool) error {
	return nil
}

func (f *fakeArticleRepo) SetFeatured(ctx context.Context, id string, isFeatured bool) error {
	return nil
}

func (f *fakeArticleRepo) Delete(ctx context.Context, id string) error { return nil }

// fakeCategoryRepo はパイプラインテスト用のCategoryRepository。
type fakeCategoryRepo struct {
	byID map[string]*model.Category
}

func (f *fakeCategoryRepo) FindByID(ctx context.Context, id string) (*model.Category, error) {
	return f.byID[id], nil
}

func (f *fakeCategoryRepo) FindBySlug(ctx context.Context, slug string) (*model.Category, error) {
	return nil, nil
}

func (f *fakeCategoryRepo) List(ctx context.Context) ([]*model.Category, error) { return nil, nil }


// fakeFeedRepo はパイプラインテスト用のFeedSourceRepository。
type fakeFeedRepo struct {
	feeds   []*model.FeedSource
	listErr error
	touched map[string]time.Time
}

func newFakeFeedRepo(feeds ...*model.FeedSource) *fakeFeedRepo {
	return &fakeFeedRepo{feeds: feeds, touched: make(map[string]time.Time)}
}

func (f *fakeFeedRepo) FindByID(ctx context.Context, id string) (*model.FeedSource, error) {
	return nil, nil
}

func (f *fakeFeedRepo) FindByURL(ctx context.Context, url string) (*model.FeedSource, error) {
	return nil, nil
}

func (f *fakeFeedRepo) ListActive(ctx context.Context) ([]*model.FeedSource, error) {
	return f.feeds, f.listErr
}

func (f *fakeFeedRepo) List(ctx context.Context) ([]*model.FeedSource, error) {
	return f.feeds, nil
}

func (f *fakeFeedRepo) Create(ctx context.Context, feed *model.FeedSource) error { return nil }

func (f *fakeFeedRepo) TouchLastFetched(ctx context.Context, id string, ts time.Time) error {
	f.touched[id] = ts
	return nil
}

// fakeFetcher はURLごとに固定のボディまたはエラーを返すFeedFetcher。
type fakeFetcher struct {
	bodies map[string][]byte
	errs   map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	if err, ok := f.errs[feedURL]; ok {
		return nil, err
	}
	return f.bodies[feedURL], nil
}

// fakeRewriter は固定の書き換え結果またはエラーを返すRewriter。
type fakeRewriter struct {
	result *model.EnrichedEntry
	err    error
	calls  int
}

func (f *fakeRewriter) Rewrite(ctx context.Context, entry model.ParsedEntry) (*model.EnrichedEntry, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeNotifier は通知呼び出しを記録するNotifier。
type fakeNotifier struct {
	result   bool
	articles []*model.Article
	urgent   []*model.Article
}

func (f *fakeNotifier) NotifyArticle(ctx context.Context, article *model.Article, category *model.Category) bool {
	f.articles = append(f.articles, article)
	return f.result
}

func (f *fakeNotifier) NotifyUrgent(ctx context.Context, article *model.Article, category *model.Category) bool {
	f.urgent = append(f.urgent, article)
	return f.result
}

type pipelineFixture struct {
	pipeline    *Pipeline
	articleRepo *fakeArticleRepo
	feedRepo    *fakeFeedRepo
	fetcher     *fakeFetcher
	rewriter    *fakeRewriter
	notifier    *fakeNotifier
}

func newPipelineFixture(feeds ...*model.FeedSource) *pipelineFixture {
	articleRepo := newFakeArticleRepo()
	feedRepo := newFakeFeedRepo(feeds...)
	fetcher := &fakeFetcher{bodies: make(map[string][]byte), errs: make(map[string]error)}
	notifier := &fakeNotifier{result: true}
	sanitizer := security.NewContentSanitizer()
	collector := metrics.NewCollector(prometheus.NewRegistry())

	fixture := &pipelineFixture{
		articleRepo: articleRepo,
		feedRepo:    feedRepo,
		fetcher:     fetcher,
		notifier:    notifier,
	}
	fixture.pipeline = NewPipeline(
		articleRepo,
		&fakeCategoryRepo{byID: map[string]*model.Category{
			"cat-1": {ID: "cat-1", Name: "Iqtisodiyot", Slug: "economy"},
		}},
		feedRepo,
		fetcher,
		NewParser(sanitizer, 5),
		nil,
		notifier,
		sanitizer,
		collector,
		testLogger(),
	)
	return fixture
}

func testFeed() *model.FeedSource {
	return &model.FeedSource{
		ID:         "feed-1",
		URL:        "https://example.com/rss",
		Name:       "Example News",
		CategoryID: "cat-1",
		IsActive:   true,
	}
}

func TestRunOnce_StoresNewEntries(t *testing.T) {
	feed := testFeed()
	fx := newPipelineFixture(feed)
	fx.fetcher.bodies[feed.URL] = rssDocument(
		rssItem("First Article", "https://example.com/1", "first"),
		rssItem("Second Article", "https://example.com/2", "second"),
	)

	stats, err := fx.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if stats.FeedsProcessed != 1 {
		t.Errorf("FeedsProcessed = %d, want 1", stats.FeedsProcessed)
	}
	if stats.ArticlesStored != 2 {
		t.Errorf("ArticlesStored = %d, want 2", stats.ArticlesStored)
	}
	if len(fx.articleRepo.created) != 2 {
		t.Fatalf("作成された記事数 = %d, want 2", len(fx.articleRepo.created))
	}

	article := fx.articleRepo.created[0]
	if article.SourceURL != "https://example.com/1" {
		t.Errorf("SourceURL = %q", article.SourceURL)
	}
	if article.SourceName != "Example News" {
		t.Errorf("SourceName = %q", article.SourceName)
	}
	if article.CategoryID != "cat-1" {
		t.Errorf("CategoryID = %q", article.CategoryID)
	}
	if article.ID == "" {
		t.Error("IDが生成されていない")
	}
	if article.IsBreaking {
		t.Error("パイプラインが保存する記事は速報フラグを持たない")
	}

	if len(fx.notifier.articles) != 2 {
		t.Errorf("通知数 = %d, want 2", len(fx.notifier.articles))
	}
	if len(fx.notifier.urgent) != 0 {
		t.Errorf("速報通知数 = %d, want 0", len(fx.notifier.urgent))
	}
	if _, ok := fx.feedRepo.touched["feed-1"]; !ok {
		t.Error("最終取得日時が更新されていない")
	}
}

func TestRunOnce_SkipsDuplicates(t *testing.T) {
	feed := testFeed()
	fx := newPipelineFixture(feed)
	fx.articleRepo.bySourceURL["https://example.com/1"] = &model.Article{SourceURL: "https://example.com/1"}
	fx.fetcher.bodies[feed.URL] = rssDocument(
		rssItem("Existing", "https://example.com/1", "d"),
		rssItem("Fresh", "https://example.com/2", "d"),
	)

	stats, err := fx.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if stats.ArticlesStored != 1 {
		t.Errorf("ArticlesStored = %d, want 1", stats.ArticlesStored)
	}
	if stats.DuplicatesSkipped != 1 {
		t.Errorf("DuplicatesSkipped = %d, want 1", stats.DuplicatesSkipped)
	}
	if len(fx.articleRepo.created) != 1 || fx.articleRepo.created[0].SourceURL != "https://example.com/2" {
		t.Errorf("新規エントリのみが保存されるべき: %+v", fx.articleRepo.created)
	}
}

func TestRunOnce_DuplicateOnlyRunStillTouchesFeed(t *testing.T) {
	feed := testFeed()
	fx := newPipelineFixture(feed)
	fx.articleRepo.bySourceURL["https://example.com/1"] = &model.Article{SourceURL: "https://example.com/1"}
	fx.fetcher.bodies[feed.URL] = rssDocument(rssItem("Existing", "https://example.com/1", "d"))

	stats, err := fx.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if stats.ArticlesStored != 0 {
		t.Errorf("ArticlesStored = %d, want 0", stats.ArticlesStored)
	}
	if _, ok := fx.feedRepo.touched["feed-1"]; !ok {
		t.Error("重複のみの実行でも最終取得日時は前進しなければならない")
	}
}

func TestRunOnce_SlugDerivedFromTitle(t *testing.T) {
	feed := testFeed()
	fx := newPipelineFixture(feed)
	fx.fetcher.bodies[feed.URL] = rssDocument(
		rssItem("Breaking: Market Surges!", "https://example.com/1", "d"),
	)

	if _, err := fx.pipeline.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(fx.articleRepo.created) != 1 {
		t.Fatal("記事が保存されていない")
	}
	if got := fx.articleRepo.created[0].Slug; got != "breaking-market-surges" {
		t.Errorf("Slug = %q, want %q", got, "breaking-market-surges")
	}
}

func TestRunOnce_SlugCollisionGetsSuffix(t *testing.T) {
	feed := testFeed()
	fx := newPipelineFixture(feed)
	fx.articleRepo.bySlug["hello-world"] = &model.Article{Slug: "hello-world"}
	fx.fetcher.bodies[feed.URL] = rssDocument(rssItem("Hello World", "https://example.com/1", "d"))

	if _, err := fx.pipeline.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	got := fx.articleRepo.created[0].Slug
	if !strings.HasPrefix(got, "hello-world-") || got == "hello-world" {
		t.Errorf("衝突時はサフィックス付きスラッグになるべき: %q", got)
	}
}

func TestRunOnce_EnrichmentApplied(t *testing.T) {
	feed := testFeed()
	fx := newPipelineFixture(feed)
	fx.rewriter = &fakeRewriter{result: &model.EnrichedEntry{
		Title:       "Bozor keskin o'sdi",
		Description: "Qayta yozilgan tavsif",
		Content:     "Qayta yozilgan matn",
	}}
	fx.pipeline.rewriter = fx.rewriter
	fx.fetcher.bodies[feed.URL] = rssDocument(rssItem("Market Surges", "https://example.com/1", "original"))

	if _, err := fx.pipeline.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	article := fx.articleRepo.created[0]
	if article.Title != "Bozor keskin o'sdi" {
		t.Errorf("Title = %q, 書き換え結果が使われていない", article.Title)
	}
	if article.Slug != "bozor-keskin-osdi" {
		t.Errorf("Slug = %q, 書き換え後タイトルから導出されるべき", article.Slug)
	}
	if fx.rewriter.calls != 1 {
		t.Errorf("Rewrite呼び出し数 = %d, want 1", fx.rewriter.calls)
	}
}

func TestRunOnce_EnrichmentFailureFallsBack(t *testing.T) {
	feed := testFeed()
	fx := newPipelineFixture(feed)
	fx.rewriter = &fakeRewriter{err: errors.New("quota exceeded")}
	fx.pipeline.rewriter = fx.rewriter
	fx.fetcher.bodies[feed.URL] = rssDocument(rssItem("Original Title", "https://example.com/1", "original desc"))

	stats, err := fx.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if stats.ArticlesStored != 1 {
		t.Errorf("書き換え失敗でも記事は保存されるべき: ArticlesStored = %d", stats.ArticlesStored)
	}
	article := fx.articleRepo.created[0]
	if article.Title != "Original Title" {
		t.Errorf("Title = %q, 元のタイトルにフォールバックすべき", article.Title)
	}
	if article.Description != "original desc" {
		t.Errorf("Description = %q", article.Description)
	}
}

func TestRunOnce_SkipsEnrichmentForDuplicates(t *testing.T) {
	feed := testFeed()
	fx := newPipelineFixture(feed)
	fx.rewriter = &fakeRewriter{result: &model.EnrichedEntry{Title: "t", Description: "d", Content: "c"}}
	fx.pipeline.rewriter = fx.rewriter
	fx.articleRepo.bySourceURL["https://example.com/1"] = &model.Article{SourceURL: "https://example.com/1"}
	fx.fetcher.bodies[feed.URL] = rssDocument(rssItem("Existing", "https://example.com/1", "d"))

	if _, err := fx.pipeline.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if fx.rewriter.calls != 0 {
		t.Errorf("重複エントリで書き換えAPIが呼ばれている: %d回", fx.rewriter.calls)
	}
}

func TestRunOnce_FetchFailureDoesNotStopOtherFeeds(t *testing.T) {
	broken := testFeed()
	healthy := &model.FeedSource{
		ID: "feed-2", URL: "https://other.example.com/rss", Name: "Other", CategoryID: "cat-1", IsActive: true,
	}
	fx := newPipelineFixture(broken, healthy)
	fx.fetcher.errs[broken.URL] = errors.New("connection refused")
	fx.fetcher.bodies[healthy.URL] = rssDocument(rssItem("Ok", "https://other.example.com/1", "d"))

	stats, err := fx.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if stats.FeedsFailed != 1 {
		t.Errorf("FeedsFailed = %d, want 1", stats.FeedsFailed)
	}
	if stats.FeedsProcessed != 1 {
		t.Errorf("FeedsProcessed = %d, want 1", stats.FeedsProcessed)
	}
	if stats.ArticlesStored != 1 {
		t.Errorf("ArticlesStored = %d, want 1", stats.ArticlesStored)
	}
	if _, ok := fx.feedRepo.touched["feed-1"]; ok {
		t.Error("フェッチ失敗フィードの最終取得日時は前進しない")
	}
}

func TestRunOnce_NotifierFailureDoesNotBlockStorage(t *testing.T) {
	feed := testFeed()
	fx := newPipelineFixture(feed)
	fx.notifier.result = false
	fx.fetcher.bodies[feed.URL] = rssDocument(rssItem("Title", "https://example.com/1", "d"))

	stats, err := fx.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if stats.ArticlesStored != 1 {
		t.Errorf("通知失敗でも記事は保存されるべき: ArticlesStored = %d", stats.ArticlesStored)
	}
}

func TestRunOnce_CreateConflictCountsAsDuplicate(t *testing.T) {
	// 事前チェックの後、別の実行が同じURLを挿入したケース
	feed := testFeed()
	fx := newPipelineFixture(feed)
	fx.articleRepo.conflictAll = true
	fx.fetcher.bodies[feed.URL] = rssDocument(rssItem("Title", "https://example.com/1", "d"))

	stats, err := fx.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if stats.ArticlesStored != 0 {
		t.Errorf("ArticlesStored = %d, want 0", stats.ArticlesStored)
	}
	if stats.DuplicatesSkipped != 1 {
		t.Errorf("DuplicatesSkipped = %d, want 1", stats.DuplicatesSkipped)
	}
	if len(fx.notifier.articles) != 0 {
		t.Error("挿入されなかった記事の通知は送信しない")
	}
}

func TestRunOnce_NoActiveFeeds(t *testing.T) {
	fx := newPipelineFixture()

	stats, err := fx.pipeline.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if stats.FeedsProcessed != 0 {
		t.Errorf("FeedsProcessed = %d, want 0", stats.FeedsProcessed)
	}
}

func TestRunOnce_SanitizesStoredContent(t *testing.T) {
	feed := testFeed()
	fx := newPipelineFixture(feed)
	fx.rewriter = &fakeRewriter{result: &model.EnrichedEntry{
		Title:       "Title",
		Description: "desc",
		Content:     `<p>matn</p><script>alert(1)</script>`,
	}}
	fx.pipeline.rewriter = fx.rewriter
	fx.fetcher.bodies[feed.URL] = rssDocument(rssItem("Title", "https://example.com/1", "d"))

	if _, err := fx.pipeline.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	content := fx.articleRepo.created[0].Content
	if strings.Contains(content, "script") {
		t.Errorf("保存された本文にscriptが残っている: %q", content)
	}
	if !strings.Contains(content, "<p>matn</p>") {
		t.Errorf("許可されたマークアップは保持されるべき: %q", content)
	}
}
