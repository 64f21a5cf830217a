// Package enrich はGemini APIによる記事の書き換え機能を提供する。
// フィードから取り込んだエントリをオリジナル記事として再構成する。
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/davron/realnews/internal/model"
)

const (
	// defaultEndpoint はGemini APIのベースエンドポイント。
	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
)

// ErrNotConfigured はAPIキー未設定のまま書き換えを要求した場合のエラー。
var ErrNotConfigured = errors.New("enrich: APIキーが設定されていません")

// responseSchema はGeminiに要求する構造化出力のスキーマ。
// title/description/content の3フィールドを必須とする。
const responseSchema = `{
  "type": "object",
  "properties": {
    "title": {"type": "string"},
    "description": {"type": "string"},
    "content": {"type": "string"}
  },
  "required": ["title", "description", "content"]
}`

// Client はGemini generateContent APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	model      string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClient の新しいインスタンスを生成する。
// apiKeyが空の場合でもインスタンスは生成されるが、Rewrite はErrNotConfiguredを返す。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey, geminiModel string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		model:      geminiModel,
		endpoint:   defaultEndpoint,
	}
}

// generateRequest はgenerateContent APIのリクエストボディ。
type generateRequest struct {
	Contents         []requestContent `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema"`
}

// generateResponse はgenerateContent APIのレスポンスボディ。
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// rewrittenArticle はGeminiが生成する構造化出力。
type rewrittenArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// Rewrite はフィードエントリをオリジナル記事として書き換える。
// 生成結果のtitle/description/contentのいずれかが空の場合はエラーを返す
// （呼び出し元が元テキストへのフォールバックを判断する）。
func (c *Client) Rewrite(ctx context.Context, entry model.ParsedEntry) (*model.EnrichedEntry, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	reqBody := generateRequest{
		Contents: []requestContent{
			{Parts: []requestPart{{Text: buildPrompt(entry)}}},
		},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   json.RawMessage(responseSchema),
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
	}

	reqURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.endpoint, url.PathEscape(c.model), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Gemini APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("model", c.model),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Gemini APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("model", c.model),
		)
		return nil, fmt.Errorf("Gemini APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("Gemini APIのレスポンスに候補が含まれていません")
	}

	var article rewrittenArticle
	text := genResp.Candidates[0].Content.Parts[0].Text
	if err := json.Unmarshal([]byte(text), &article); err != nil {
		return nil, fmt.Errorf("生成結果JSONのパースに失敗しました: %w", err)
	}

	// 3フィールドすべてが揃っていない生成結果は不完全として扱う
	if article.Title == "" || article.Description == "" || article.Content == "" {
		return nil, fmt.Errorf("生成結果に空のフィールドが含まれています")
	}

	return &model.EnrichedEntry{
		Title:       article.Title,
		Description: article.Description,
		Content:     article.Content,
	}, nil
}

// buildPrompt はエントリから書き換え用のプロンプトを構築する。
func buildPrompt(entry model.ParsedEntry) string {
	var b strings.Builder
	b.WriteString("Siz professional o'zbek tilidagi yangiliklar muharriri sifatida ishlaysiz. ")
	b.WriteString("Quyidagi yangilikni o'zbek tilida, mustaqil maqola sifatida qayta yozing. ")
	b.WriteString("Faktlarni o'zgartirmang, yangi ma'lumot qo'shmang.\n\n")
	b.WriteString("Sarlavha: ")
	b.WriteString(entry.Title)
	b.WriteString("\n\nMatn: ")
	if entry.Content != "" {
		b.WriteString(entry.Content)
	} else {
		b.WriteString(entry.Description)
	}
	b.WriteString("\n\nJSON formatida javob bering: title (qisqa sarlavha), description (2-3 gap), content (to'liq maqola).")
	return b.String()
}
