package handler

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/davron/realnews/internal/model"
	"github.com/davron/realnews/internal/repository"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NewsletterHandler はニュースレター購読のHTTPハンドラー。
type NewsletterHandler struct {
	newsletterRepo repository.NewsletterRepository
}

// NewNewsletterHandler はNewsletterHandlerを生成する。
func NewNewsletterHandler(newsletterRepo repository.NewsletterRepository) *NewsletterHandler {
	return &NewsletterHandler{newsletterRepo: newsletterRepo}
}

// subscribeRequest はニュースレター購読リクエストのボディ。
type subscribeRequest struct {
	Email string `json:"email"`
}

// subscribeResponse はニュースレター購読のレスポンス。
type subscribeResponse struct {
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// Subscribe はメールアドレスを購読登録する。同一アドレスの再登録は冪等。
// POST /api/newsletter/subscribe
func (h *NewsletterHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return
	}

	if !emailPattern.MatchString(req.Email) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidEmailError())
		return
	}

	sub, err := h.newsletterRepo.Subscribe(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, subscribeResponse{
		Email:    sub.Email,
		IsActive: sub.IsActive,
	})
}
