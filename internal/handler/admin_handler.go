package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/davron/realnews/internal/ingest"
	"github.com/davron/realnews/internal/model"
	"github.com/davron/realnews/internal/repository"
)

// PipelineTrigger は取り込みパイプラインの手動実行インターフェース。
type PipelineTrigger interface {
	RunOnce(ctx context.Context) (ingest.RunStats, error)
}

// URLValidator はフィード登録時のURL検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ContentSanitizer は管理者が投稿する記事本文の無害化インターフェース。
type ContentSanitizer interface {
	Sanitize(rawHTML string) string
}

// AdminHandler は管理APIのHTTPハンドラー。
// すべてのルートはNewAdminAuthMiddlewareで保護される。
type AdminHandler struct {
	articleRepo    repository.ArticleRepository
	categoryRepo   repository.CategoryRepository
	feedRepo       repository.FeedSourceRepository
	newsletterRepo repository.NewsletterRepository
	pipeline       PipelineTrigger
	urlValidator   URLValidator
	sanitizer      ContentSanitizer
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(
	articleRepo repository.ArticleRepository,
	categoryRepo repository.CategoryRepository,
	feedRepo repository.FeedSourceRepository,
	newsletterRepo repository.NewsletterRepository,
	pipeline PipelineTrigger,
	urlValidator URLValidator,
	sanitizer ContentSanitizer,
) *AdminHandler {
	return &AdminHandler{
		articleRepo:    articleRepo,
		categoryRepo:   categoryRepo,
		feedRepo:       feedRepo,
		newsletterRepo: newsletterRepo,
		pipeline:       pipeline,
		urlValidator:   urlValidator,
		sanitizer:      sanitizer,
	}
}

// TriggerFetch は取り込みパイプラインを即時実行する。
// POST /api/admin/fetch-rss
func (h *AdminHandler) TriggerFetch(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pipeline.RunOnce(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// feedResponse はフィード設定のAPIレスポンス。
type feedResponse struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Name          string     `json:"name"`
	CategoryID    string     `json:"category_id,omitempty"`
	IsActive      bool       `json:"is_active"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toFeedResponse(f *model.FeedSource) feedResponse {
	return feedResponse{
		ID:            f.ID,
		URL:           f.URL,
		Name:          f.Name,
		CategoryID:    f.CategoryID,
		IsActive:      f.IsActive,
		LastFetchedAt: f.LastFetchedAt,
		CreatedAt:     f.CreatedAt,
	}
}

// ListFeeds は登録済みフィードの一覧を取得する。
// GET /api/admin/rss-feeds
func (h *AdminHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.feedRepo.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]feedResponse, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, toFeedResponse(f))
	}
	writeJSON(w, http.StatusOK, out)
}

// createFeedRequest はフィード登録リクエストのボディ。
type createFeedRequest struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
}

// CreateFeed はフィードを登録する。
// POST /api/admin/rss-feeds
func (h *AdminHandler) CreateFeed(w http.ResponseWriter, r *http.Request) {
	var req createFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return
	}

	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("nameは必須です"))
		return
	}

	// SSRF検証。プライベートIPやlocalhost宛のフィードは登録させない。
	if err := h.urlValidator.ValidateURL(req.URL); err != nil {
		writeAPIErrorResponse(w, http.StatusUnprocessableEntity, model.NewSSRFBlockedError())
		return
	}

	if req.CategoryID != "" {
		category, err := h.categoryRepo.FindByID(r.Context(), req.CategoryID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if category == nil {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewCategoryNotFoundError(req.CategoryID))
			return
		}
	}

	existing, err := h.feedRepo.FindByURL(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if existing != nil {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewDuplicateFeedError(req.URL))
		return
	}

	feed := &model.FeedSource{
		ID:         uuid.New().String(),
		URL:        req.URL,
		Name:       req.Name,
		CategoryID: req.CategoryID,
		IsActive:   true,
		CreatedAt:  time.Now(),
	}
	if err := h.feedRepo.Create(r.Context(), feed); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFeedResponse(feed))
}

// createArticleRequest は管理者による記事の手動投稿リクエストのボディ。
type createArticleRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	ImageURL    string `json:"image_url"`
	SourceURL   string `json:"source_url"`
	SourceName  string `json:"source_name"`
	CategoryID  string `json:"category_id"`
	IsBreaking  bool   `json:"is_breaking"`
	IsFeatured  bool   `json:"is_featured"`
}

// CreateArticle は記事を手動で投稿する。取り込みパイプラインを経由しない
// 編集部発の記事向け。
// POST /api/admin/articles
func (h *AdminHandler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	var req createArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return
	}

	if req.Title == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("titleは必須です"))
		return
	}
	if req.Content == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("contentは必須です"))
		return
	}
	if req.CategoryID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("category_idは必須です"))
		return
	}

	category, err := h.categoryRepo.FindByID(r.Context(), req.CategoryID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if category == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewCategoryNotFoundError(req.CategoryID))
		return
	}

	id := uuid.New().String()

	// 手動投稿には取り込み元がないため、ID由来の一意なURNを割り当てる
	sourceURL := req.SourceURL
	if sourceURL == "" {
		sourceURL = "urn:realnews:manual:" + id
	}
	sourceName := req.SourceName
	if sourceName == "" {
		sourceName = "RealNews"
	}

	slug := ingest.Slugify(req.Title)
	existing, err := h.articleRepo.FindBySlug(r.Context(), slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if existing != nil {
		slug = slug + "-" + id[:8]
	}

	article := &model.Article{
		ID:          id,
		Title:       req.Title,
		Slug:        slug,
		Description: req.Description,
		Content:     h.sanitizer.Sanitize(req.Content),
		ImageURL:    req.ImageURL,
		SourceURL:   sourceURL,
		SourceName:  sourceName,
		CategoryID:  req.CategoryID,
		PublishedAt: time.Now(),
		CreatedAt:   time.Now(),
		IsBreaking:  req.IsBreaking,
		IsFeatured:  req.IsFeatured,
	}

	inserted, err := h.articleRepo.Create(r.Context(), article)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !inserted {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewDuplicateArticleError(sourceURL))
		return
	}

	writeJSON(w, http.StatusCreated, toArticleResponse(article, true))
}

// flagRequest は記事フラグ更新リクエストのボディ。
type flagRequest struct {
	Value bool `json:"value"`
}

// SetBreaking は記事の速報フラグを更新する。
// PATCH /api/admin/articles/{id}/breaking
func (h *AdminHandler) SetBreaking(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, h.articleRepo.SetBreaking)
}

// SetFeatured は記事の注目フラグを更新する。
// PATCH /api/admin/articles/{id}/featured
func (h *AdminHandler) SetFeatured(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, h.articleRepo.SetFeatured)
}

func (h *AdminHandler) setFlag(w http.ResponseWriter, r *http.Request, update func(ctx context.Context, id string, value bool) error) {
	id := chi.URLParam(r, "id")

	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return
	}

	article, err := h.articleRepo.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if article == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewArticleNotFoundError(id))
		return
	}

	if err := update(r.Context(), id, req.Value); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteArticle は記事を削除する。
// DELETE /api/admin/articles/{id}
func (h *AdminHandler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	article, err := h.articleRepo.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if article == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewArticleNotFoundError(id))
		return
	}

	if err := h.articleRepo.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// newsletterEntry はニュースレター購読者のAPIレスポンス。
type newsletterEntry struct {
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ListNewsletters はニュースレター購読者の一覧を取得する。
// GET /api/admin/newsletters
func (h *AdminHandler) ListNewsletters(w http.ResponseWriter, r *http.Request) {
	subs, err := h.newsletterRepo.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]newsletterEntry, 0, len(subs))
	for _, s := range subs {
		out = append(out, newsletterEntry{
			Email:     s.Email,
			IsActive:  s.IsActive,
			CreatedAt: s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
