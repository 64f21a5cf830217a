package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/davron/realnews/internal/ingest"
	"github.com/davron/realnews/internal/model"
)

func adminHeaders() map[string]string {
	return map[string]string{
		"X-Admin-Token": testAdminToken,
		"Content-Type":  "application/json",
	}
}

func TestTriggerFetch_ReturnsStats(t *testing.T) {
	fx := newRouterFixture(t)
	fx.pipeline.stats = ingest.RunStats{FeedsProcessed: 3, ArticlesStored: 7, DuplicatesSkipped: 2}

	rec := fx.do("POST", "/api/admin/fetch-rss", "", adminHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats ingest.RunStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if stats.ArticlesStored != 7 {
		t.Errorf("ArticlesStored = %d, want 7", stats.ArticlesStored)
	}
}

func TestCreateFeed(t *testing.T) {
	fx := newRouterFixture(t)

	body := `{"url": "https://kun.uz/news/rss", "name": "Kun.uz", "category_id": "cat-1"}`
	rec := fx.do("POST", "/api/admin/rss-feeds", body, adminHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp feedResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.URL != "https://kun.uz/news/rss" {
		t.Errorf("url = %q", resp.URL)
	}
	if !resp.IsActive {
		t.Error("新規フィードは有効で登録される")
	}
	if resp.ID == "" {
		t.Error("IDが生成されていない")
	}
}

func TestCreateFeed_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		ssrfErr    error
		wantStatus int
		wantCode   string
	}{
		{"URLなし", `{"name": "x"}`, nil, http.StatusBadRequest, "INVALID_URL"},
		{"nameなし", `{"url": "https://example.com/rss"}`, nil, http.StatusBadRequest, "INVALID_BODY"},
		{"不正なJSON", `{`, nil, http.StatusBadRequest, "INVALID_BODY"},
		{"SSRFブロック", `{"url": "http://10.0.0.1/rss", "name": "x"}`, errors.New("blocked"), http.StatusUnprocessableEntity, "SSRF_BLOCKED"},
		{"未知のカテゴリ", `{"url": "https://example.com/rss", "name": "x", "category_id": "missing"}`, nil, http.StatusNotFound, "CATEGORY_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newRouterFixture(t)
			fx.validator.err = tt.ssrfErr

			rec := fx.do("POST", "/api/admin/rss-feeds", tt.body, adminHeaders())
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body apiErrorResponse
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestCreateFeed_Duplicate(t *testing.T) {
	fx := newRouterFixture(t)
	fx.feedRepo.feeds = []*model.FeedSource{{ID: "f-1", URL: "https://kun.uz/news/rss"}}

	body := `{"url": "https://kun.uz/news/rss", "name": "Kun.uz"}`
	rec := fx.do("POST", "/api/admin/rss-feeds", body, adminHeaders())
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestListFeeds(t *testing.T) {
	fx := newRouterFixture(t)
	fx.feedRepo.feeds = []*model.FeedSource{
		{ID: "f-1", URL: "https://kun.uz/news/rss", Name: "Kun.uz", IsActive: true},
	}

	rec := fx.do("GET", "/api/admin/rss-feeds", "", adminHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var feeds []feedResponse
	json.Unmarshal(rec.Body.Bytes(), &feeds)
	if len(feeds) != 1 || feeds[0].Name != "Kun.uz" {
		t.Errorf("feeds = %+v", feeds)
	}
}

func TestCreateArticle(t *testing.T) {
	fx := newRouterFixture(t)

	body := `{"title": "Yangi loyiha e'lon qilindi", "description": "qisqa", "content": "<p>matn</p><script>alert(1)</script>", "category_id": "cat-1", "is_featured": true}`
	rec := fx.do("POST", "/api/admin/articles", body, adminHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp articleResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Slug != "yangi-loyiha-elon-qilindi" {
		t.Errorf("slug = %q", resp.Slug)
	}
	if strings.Contains(resp.Content, "<script>") {
		t.Errorf("本文が無害化されていない: %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "<p>matn</p>") {
		t.Errorf("安全なマークアップが失われている: %q", resp.Content)
	}
	if !resp.IsFeatured {
		t.Error("注目フラグが反映されていない")
	}
	if !strings.HasPrefix(resp.SourceURL, "urn:realnews:manual:") {
		t.Errorf("手動投稿のsource_url = %q", resp.SourceURL)
	}
	if resp.SourceName != "RealNews" {
		t.Errorf("source_name = %q", resp.SourceName)
	}
}

func TestCreateArticle_Validation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"titleなし", `{"content": "x", "category_id": "cat-1"}`, http.StatusBadRequest},
		{"contentなし", `{"title": "x", "category_id": "cat-1"}`, http.StatusBadRequest},
		{"category_idなし", `{"title": "x", "content": "y"}`, http.StatusBadRequest},
		{"未知のカテゴリ", `{"title": "x", "content": "y", "category_id": "missing"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newRouterFixture(t)

			rec := fx.do("POST", "/api/admin/articles", tt.body, adminHeaders())
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCreateArticle_SlugCollisionGetsSuffix(t *testing.T) {
	fx := newRouterFixture(t, sampleArticle("a-1", "yangi-loyiha"))

	body := `{"title": "Yangi loyiha", "content": "matn", "category_id": "cat-1"}`
	rec := fx.do("POST", "/api/admin/articles", body, adminHeaders())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp articleResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.HasPrefix(resp.Slug, "yangi-loyiha-") || resp.Slug == "yangi-loyiha" {
		t.Errorf("衝突時はサフィックス付きスラッグになる: %q", resp.Slug)
	}
}

func TestSetBreakingFlag(t *testing.T) {
	fx := newRouterFixture(t, sampleArticle("a-1", "first"))

	rec := fx.do("PATCH", "/api/admin/articles/a-1/breaking", `{"value": true}`, adminHeaders())
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !fx.articleRepo.breaking["a-1"] {
		t.Error("速報フラグが更新されていない")
	}
}

func TestSetFeaturedFlag_NotFound(t *testing.T) {
	fx := newRouterFixture(t)

	rec := fx.do("PATCH", "/api/admin/articles/missing/featured", `{"value": true}`, adminHeaders())
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteArticle(t *testing.T) {
	fx := newRouterFixture(t, sampleArticle("a-1", "first"))

	rec := fx.do("DELETE", "/api/admin/articles/a-1", "", adminHeaders())
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(fx.articleRepo.deleted) != 1 || fx.articleRepo.deleted[0] != "a-1" {
		t.Errorf("deleted = %v", fx.articleRepo.deleted)
	}
}

func TestListNewsletters(t *testing.T) {
	fx := newRouterFixture(t)
	fx.newsRepo.subscribed = []string{"a@example.com"}

	rec := fx.do("GET", "/api/admin/newsletters", "", adminHeaders())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var entries []newsletterEntry
	json.Unmarshal(rec.Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].Email != "a@example.com" {
		t.Errorf("entries = %+v", entries)
	}
}
