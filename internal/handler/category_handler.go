package handler

import (
	"net/http"
	"time"

	"github.com/davron/realnews/internal/model"
	"github.com/davron/realnews/internal/repository"
)

// categoryResponse はカテゴリのAPIレスポンス。
type categoryResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

func toCategoryResponse(c *model.Category) categoryResponse {
	return categoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		Slug:      c.Slug,
		Icon:      c.Icon,
		Color:     c.Color,
		CreatedAt: c.CreatedAt,
	}
}

// CategoryHandler はカテゴリのHTTPハンドラー。
type CategoryHandler struct {
	categoryRepo repository.CategoryRepository
}

// NewCategoryHandler はCategoryHandlerを生成する。
func NewCategoryHandler(categoryRepo repository.CategoryRepository) *CategoryHandler {
	return &CategoryHandler{categoryRepo: categoryRepo}
}

// List は全カテゴリを取得する。
// GET /api/categories
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categoryRepo.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, toCategoryResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}
