package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/davron/realnews/internal/model"
	"github.com/davron/realnews/internal/repository"
)

// PushHandler はWebプッシュ購読のHTTPハンドラー。
type PushHandler struct {
	pushRepo       repository.PushSubscriptionRepository
	vapidPublicKey string
}

// NewPushHandler はPushHandlerを生成する。
func NewPushHandler(pushRepo repository.PushSubscriptionRepository, vapidPublicKey string) *PushHandler {
	return &PushHandler{
		pushRepo:       pushRepo,
		vapidPublicKey: vapidPublicKey,
	}
}

// pushSubscribeRequest はPushManager.subscribe()が生成する購読オブジェクト。
type pushSubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// pushUnsubscribeRequest は購読解除リクエストのボディ。
type pushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// vapidKeyResponse はVAPID公開鍵のレスポンス。
type vapidKeyResponse struct {
	PublicKey string `json:"public_key"`
}

// Subscribe はプッシュ購読を登録する。同一エンドポイントの再登録は冪等。
// POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req pushSubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return
	}

	if !strings.HasPrefix(req.Endpoint, "https://") || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("endpointとkeysは必須です"))
		return
	}

	sub := &model.PushSubscription{
		ID:        uuid.New().String(),
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		UserAgent: r.Header.Get("User-Agent"),
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	if err := h.pushRepo.Upsert(r.Context(), sub); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Unsubscribe はプッシュ購読を無効化する。
// POST /api/push/unsubscribe
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req pushUnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("JSONの解析に失敗しました"))
		return
	}

	if req.Endpoint == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("endpointは必須です"))
		return
	}

	if err := h.pushRepo.DeactivateByEndpoint(r.Context(), req.Endpoint); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// VAPIDKey はプッシュ購読に必要なVAPID公開鍵を返す。
// GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, vapidKeyResponse{PublicKey: h.vapidPublicKey})
}
