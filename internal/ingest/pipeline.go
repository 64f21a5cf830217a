// Package ingest はRSSフィードの取り込みパイプラインを提供する。
// フェッチ、パース、重複判定、AI書き換え、保存、通知を直列に実行する。
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/davron/realnews/internal/metrics"
	"github.com/davron/realnews/internal/model"
	"github.com/davron/realnews/internal/notify"
	"github.com/davron/realnews/internal/repository"
)

// FeedFetcher はフィードURLのフェッチインターフェース。
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]byte, error)
}

// FeedParser はフィードXMLのパースインターフェース。
type FeedParser interface {
	Parse(body []byte) ([]model.ParsedEntry, error)
}

// Rewriter はエントリのAI書き換えインターフェース。
type Rewriter interface {
	Rewrite(ctx context.Context, entry model.ParsedEntry) (*model.EnrichedEntry, error)
}

// ContentSanitizer は保存前の本文サニタイズインターフェース。
type ContentSanitizer interface {
	Sanitize(input string) string
}

// RunStats は1回のパイプライン実行の集計結果。
type RunStats struct {
	FeedsProcessed    int `json:"feeds_processed"`
	FeedsFailed       int `json:"feeds_failed"`
	EntriesSeen       int `json:"entries_seen"`
	ArticlesStored    int `json:"articles_stored"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
}

// Pipeline はフィード取り込みの全工程を統括する。
// フィードは登録順に1件ずつ直列に処理され、1フィードの失敗が
// 他のフィードの処理を妨げることはない。
type Pipeline struct {
	articleRepo  repository.ArticleRepository
	categoryRepo repository.CategoryRepository
	feedRepo     repository.FeedSourceRepository
	fetcher      FeedFetcher
	parser       FeedParser
	rewriter     Rewriter        // nilの場合は書き換え無効
	notifier     notify.Notifier // nilの場合は通知無効
	sanitizer    ContentSanitizer
	collector    *metrics.Collector
	logger       *slog.Logger
}

// NewPipeline はPipelineの新しいインスタンスを生成する。
// rewriterとnotifierはnilを許容し、その場合は該当工程をスキップする。
func NewPipeline(
	articleRepo repository.ArticleRepository,
	categoryRepo repository.CategoryRepository,
	feedRepo repository.FeedSourceRepository,
	fetcher FeedFetcher,
	parser FeedParser,
	rewriter Rewriter,
	notifier notify.Notifier,
	sanitizer ContentSanitizer,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		articleRepo:  articleRepo,
		categoryRepo: categoryRepo,
		feedRepo:     feedRepo,
		fetcher:      fetcher,
		parser:       parser,
		rewriter:     rewriter,
		notifier:     notifier,
		sanitizer:    sanitizer,
		collector:    collector,
		logger:       logger,
	}
}

// RunOnce は有効な全フィードを1巡取り込む。
// 個別フィードの失敗は集計に記録して処理を継続する。
func (p *Pipeline) RunOnce(ctx context.Context) (RunStats, error) {
	start := time.Now()
	var stats RunStats

	feeds, err := p.feedRepo.ListActive(ctx)
	if err != nil {
		return stats, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}

	if len(feeds) == 0 {
		p.logger.Info("取り込み対象のフィードはありません")
		return stats, nil
	}

	p.logger.Info("取り込みサイクルを開始します",
		slog.Int("feed_count", len(feeds)),
	)

	for _, feed := range feeds {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		feedStats, err := p.processFeed(ctx, feed)
		stats.EntriesSeen += feedStats.EntriesSeen
		stats.ArticlesStored += feedStats.ArticlesStored
		stats.DuplicatesSkipped += feedStats.DuplicatesSkipped
		if err != nil {
			stats.FeedsFailed++
			p.logger.Error("フィードの取り込みに失敗しました",
				slog.String("feed_id", feed.ID),
				slog.String("feed_url", feed.URL),
				slog.String("error", err.Error()),
			)
			continue
		}
		stats.FeedsProcessed++
	}

	duration := time.Since(start)
	p.logger.Info("取り込みサイクルが完了しました",
		slog.Int("feeds_processed", stats.FeedsProcessed),
		slog.Int("feeds_failed", stats.FeedsFailed),
		slog.Int("entries_seen", stats.EntriesSeen),
		slog.Int("articles_stored", stats.ArticlesStored),
		slog.Int("duplicates_skipped", stats.DuplicatesSkipped),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return stats, nil
}

// processFeed は単一フィードをフェッチしてエントリを取り込む。
func (p *Pipeline) processFeed(ctx context.Context, feed *model.FeedSource) (RunStats, error) {
	var stats RunStats
	start := time.Now()

	body, err := p.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		p.collector.RecordFetchFailure()
		return stats, err
	}
	p.collector.RecordFetchSuccess()
	p.collector.RecordFetchLatency(time.Since(start))

	entries, err := p.parser.Parse(body)
	if err != nil {
		p.collector.RecordParseFailure()
		return stats, err
	}
	p.collector.RecordEntriesParsed(len(entries))
	stats.EntriesSeen = len(entries)

	category := p.lookupCategory(ctx, feed.CategoryID)

	for _, entry := range entries {
		inserted, err := p.processEntry(ctx, feed, category, entry)
		if err != nil {
			p.logger.Error("エントリの取り込みに失敗しました",
				slog.String("feed_id", feed.ID),
				slog.String("source_url", entry.Link),
				slog.String("error", err.Error()),
			)
			continue
		}
		if inserted {
			stats.ArticlesStored++
		} else {
			stats.DuplicatesSkipped++
		}
	}

	// 重複のみの実行でも最終取得日時は前進させる
	if err := p.feedRepo.TouchLastFetched(ctx, feed.ID, time.Now()); err != nil {
		p.logger.Error("フィード最終取得日時の更新に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
	}

	p.logger.Info("フィードの取り込みが完了しました",
		slog.String("feed_id", feed.ID),
		slog.String("feed_url", feed.URL),
		slog.Int("entries_seen", stats.EntriesSeen),
		slog.Int("articles_stored", stats.ArticlesStored),
		slog.Int("duplicates_skipped", stats.DuplicatesSkipped),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return stats, nil
}

// processEntry は単一エントリの重複判定、書き換え、保存、通知を行う。
// 新規保存された場合はtrueを返す。
func (p *Pipeline) processEntry(ctx context.Context, feed *model.FeedSource, category *model.Category, entry model.ParsedEntry) (bool, error) {
	// 事前の重複チェック。書き換えAPIの無駄な呼び出しを避ける。
	existing, err := p.articleRepo.FindBySourceURL(ctx, entry.Link)
	if err != nil {
		return false, fmt.Errorf("重複判定に失敗しました: %w", err)
	}
	if existing != nil {
		p.collector.RecordDuplicateSkipped()
		return false, nil
	}

	enriched := p.enrich(ctx, entry)

	slug, err := p.resolveSlug(ctx, enriched.Title)
	if err != nil {
		return false, err
	}

	article := &model.Article{
		ID:          uuid.New().String(),
		Title:       enriched.Title,
		Slug:        slug,
		Description: enriched.Description,
		Content:     p.sanitizer.Sanitize(enriched.Content),
		ImageURL:    entry.ImageURL,
		SourceURL:   entry.Link,
		SourceName:  feed.Name,
		CategoryID:  feed.CategoryID,
		PublishedAt: entry.PublishedAt,
		CreatedAt:   time.Now(),
	}

	inserted, err := p.articleRepo.Create(ctx, article)
	if err != nil {
		return false, fmt.Errorf("記事の保存に失敗しました: %w", err)
	}
	if !inserted {
		// 事前チェック後に別の実行が同じURLを挿入した場合
		p.collector.RecordDuplicateSkipped()
		return false, nil
	}
	p.collector.RecordArticleStored()

	p.notifyStored(ctx, article, category)

	return true, nil
}

// enrich はエントリをAIで書き換える。書き換えが無効または失敗した場合は
// 元のテキストをそのまま返す。
func (p *Pipeline) enrich(ctx context.Context, entry model.ParsedEntry) model.EnrichedEntry {
	fallback := model.EnrichedEntry{
		Title:       entry.Title,
		Description: entry.Description,
		Content:     entry.Content,
	}

	if p.rewriter == nil {
		return fallback
	}

	enriched, err := p.rewriter.Rewrite(ctx, entry)
	if err != nil {
		p.collector.RecordEnrichFallback()
		p.logger.Warn("AI書き換えに失敗したため元のテキストを使用します",
			slog.String("source_url", entry.Link),
			slog.String("error", err.Error()),
		)
		return fallback
	}

	return *enriched
}

// resolveSlug はタイトルからスラッグを導出し、衝突時は短いサフィックスを付与する。
func (p *Pipeline) resolveSlug(ctx context.Context, title string) (string, error) {
	slug := Slugify(title)

	existing, err := p.articleRepo.FindBySlug(ctx, slug)
	if err != nil {
		return "", fmt.Errorf("スラッグの照会に失敗しました: %w", err)
	}
	if existing == nil {
		return slug, nil
	}

	return fmt.Sprintf("%s-%s", slug, uuid.New().String()[:8]), nil
}

// notifyStored は新規保存された記事の通知を送信する。通知はベストエフォート。
func (p *Pipeline) notifyStored(ctx context.Context, article *model.Article, category *model.Category) {
	if p.notifier == nil {
		return
	}

	if !p.notifier.NotifyArticle(ctx, article, category) {
		p.collector.RecordNotifyFailure()
	}

	// 速報フラグ付き記事には速報通知も送信する
	if article.IsBreaking {
		if !p.notifier.NotifyUrgent(ctx, article, category) {
			p.collector.RecordNotifyFailure()
		}
	}
}

// lookupCategory は通知メッセージ用にカテゴリを取得する。取得失敗は致命的ではない。
func (p *Pipeline) lookupCategory(ctx context.Context, categoryID string) *model.Category {
	if categoryID == "" {
		return nil
	}
	category, err := p.categoryRepo.FindByID(ctx, categoryID)
	if err != nil {
		p.logger.Warn("カテゴリの取得に失敗しました",
			slog.String("category_id", categoryID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return category
}
