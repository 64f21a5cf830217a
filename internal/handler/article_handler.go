package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/davron/realnews/internal/model"
	"github.com/davron/realnews/internal/repository"
)

// trendingWindow は急上昇記事の集計対象期間。
const trendingWindow = 7 * 24 * time.Hour

// articleResponse は記事のAPIレスポンス。
type articleResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Content     string    `json:"content,omitempty"`
	ImageURL    string    `json:"image_url"`
	SourceURL   string    `json:"source_url"`
	SourceName  string    `json:"source_name"`
	CategoryID  string    `json:"category_id,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
	Views       int       `json:"views"`
	Likes       int       `json:"likes"`
	IsBreaking  bool      `json:"is_breaking"`
	IsFeatured  bool      `json:"is_featured"`
}

// toArticleResponse は記事モデルをレスポンスに変換する。
// includeContentがfalseの場合、一覧向けに本文を省略する。
func toArticleResponse(a *model.Article, includeContent bool) articleResponse {
	resp := articleResponse{
		ID:          a.ID,
		Title:       a.Title,
		Slug:        a.Slug,
		Description: a.Description,
		ImageURL:    a.ImageURL,
		SourceURL:   a.SourceURL,
		SourceName:  a.SourceName,
		CategoryID:  a.CategoryID,
		PublishedAt: a.PublishedAt,
		CreatedAt:   a.CreatedAt,
		Views:       a.Views,
		Likes:       a.Likes,
		IsBreaking:  a.IsBreaking,
		IsFeatured:  a.IsFeatured,
	}
	if includeContent {
		resp.Content = a.Content
	}
	return resp
}

func toArticleListResponse(articles []*model.Article) []articleResponse {
	out := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		out = append(out, toArticleResponse(a, false))
	}
	return out
}

// ArticleHandler は記事閲覧系のHTTPハンドラー。
type ArticleHandler struct {
	articleRepo  repository.ArticleRepository
	categoryRepo repository.CategoryRepository
	logger       *slog.Logger
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(articleRepo repository.ArticleRepository, categoryRepo repository.CategoryRepository, logger *slog.Logger) *ArticleHandler {
	return &ArticleHandler{
		articleRepo:  articleRepo,
		categoryRepo: categoryRepo,
		logger:       logger,
	}
}

// List は記事一覧を取得する。
// GET /api/articles
func (h *ArticleHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	articles, err := h.articleRepo.List(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toArticleListResponse(articles))
}

// ListByCategory はカテゴリ内の記事一覧を取得する。
// GET /api/categories/{slug}/articles
func (h *ArticleHandler) ListByCategory(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	category, err := h.categoryRepo.FindBySlug(r.Context(), slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if category == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewCategoryNotFoundError(slug))
		return
	}

	limit, offset := parsePagination(r)
	articles, err := h.articleRepo.ListByCategory(r.Context(), category.ID, limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toArticleListResponse(articles))
}

// ListFeatured は注目記事の一覧を取得する。
// GET /api/articles/featured
func (h *ArticleHandler) ListFeatured(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePagination(r)

	articles, err := h.articleRepo.ListFeatured(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toArticleListResponse(articles))
}

// ListBreaking は速報記事の一覧を取得する。
// GET /api/articles/breaking
func (h *ArticleHandler) ListBreaking(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePagination(r)

	articles, err := h.articleRepo.ListBreaking(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toArticleListResponse(articles))
}

// ListTrending は直近の閲覧数上位の記事一覧を取得する。
// GET /api/articles/trending
func (h *ArticleHandler) ListTrending(w http.ResponseWriter, r *http.Request) {
	limit, _ := parsePagination(r)
	since := time.Now().Add(-trendingWindow)

	articles, err := h.articleRepo.ListTrending(r.Context(), since, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toArticleListResponse(articles))
}

// Search はタイトルと概要の部分一致で記事を検索する。
// GET /api/articles/search?q=
func (h *ArticleHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError())
		return
	}

	limit, _ := parsePagination(r)
	articles, err := h.articleRepo.Search(r.Context(), query, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toArticleListResponse(articles))
}

// GetBySlug はスラッグで記事詳細を取得し、閲覧数を加算する。
// GET /api/articles/slug/{slug}
func (h *ArticleHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	article, err := h.articleRepo.FindBySlug(r.Context(), slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if article == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewArticleNotFoundError(slug))
		return
	}

	// 閲覧数の加算はベストエフォート。失敗しても記事は返す。
	if err := h.articleRepo.IncrementViews(r.Context(), article.ID); err != nil {
		h.logger.Error("閲覧数の加算に失敗しました",
			slog.String("article_id", article.ID),
			slog.String("error", err.Error()),
		)
	} else {
		article.Views++
	}

	writeJSON(w, http.StatusOK, toArticleResponse(article, true))
}

// likeResponse はいいね加算のレスポンス。
type likeResponse struct {
	Likes int `json:"likes"`
}

// Like は記事のいいね数を加算する。
// POST /api/articles/{id}/like
func (h *ArticleHandler) Like(w http.ResponseWriter, r *http.Request) {
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

	likes, err := h.articleRepo.IncrementLikes(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, likeResponse{Likes: likes})
}
