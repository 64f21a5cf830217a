package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/davron/realnews/internal/model"
)

// defaultTelegramEndpoint はTelegram Bot APIのベースエンドポイント。
const defaultTelegramEndpoint = "https://api.telegram.org"

// categoryIcons はカテゴリスラッグと通知アイコンの対応表。
var categoryIcons = map[string]string{
	"uzbekistan": "🇺🇿",
	"world":      "🌍",
	"sport":      "⚽",
	"technology": "💻",
	"economy":    "💰",
	"culture":    "🎭",
}

// defaultIcon は対応表にないカテゴリで使用するアイコン。
const defaultIcon = "📰"

// TelegramClient はTelegram Bot APIによる通知チャネル。
type TelegramClient struct {
	httpClient  *http.Client
	logger      *slog.Logger
	botToken    string
	chatID      string
	siteBaseURL string
	endpoint    string // テスト用にエンドポイントを差し替え可能
}

// NewTelegramClient はTelegramClient の新しいインスタンスを生成する。
func NewTelegramClient(httpClient *http.Client, logger *slog.Logger, botToken, chatID, siteBaseURL string) *TelegramClient {
	return &TelegramClient{
		httpClient:  httpClient,
		logger:      logger,
		botToken:    botToken,
		chatID:      chatID,
		siteBaseURL: siteBaseURL,
		endpoint:    defaultTelegramEndpoint,
	}
}

// sendMessageRequest はsendMessage APIのリクエストボディ。
type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// NotifyArticle は新着記事の通知をTelegramチャンネルに送信する。
func (c *TelegramClient) NotifyArticle(ctx context.Context, article *model.Article, category *model.Category) bool {
	icon := defaultIcon
	categoryName := ""
	if category != nil {
		if i, ok := categoryIcons[category.Slug]; ok {
			icon = i
		}
		categoryName = category.Name
	}

	var b strings.Builder
	b.WriteString(icon)
	b.WriteString(" <b>")
	b.WriteString(escapeHTML(article.Title))
	b.WriteString("</b>\n\n")
	if article.Description != "" {
		b.WriteString(escapeHTML(article.Description))
		b.WriteString("\n\n")
	}
	if categoryName != "" {
		b.WriteString("#")
		b.WriteString(escapeHTML(categoryName))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf(`<a href="%s/article/%s">Batafsil o'qish →</a>`, c.siteBaseURL, article.Slug))

	return c.send(ctx, b.String())
}

// NotifyUrgent は速報記事の通知をTelegramチャンネルに送信する。
func (c *TelegramClient) NotifyUrgent(ctx context.Context, article *model.Article, category *model.Category) bool {
	var b strings.Builder
	b.WriteString("🚨 <b>SHOSHILINCH XABAR</b> 🚨\n\n")
	b.WriteString("<b>")
	b.WriteString(escapeHTML(article.Title))
	b.WriteString("</b>\n\n")
	if article.Description != "" {
		b.WriteString(escapeHTML(article.Description))
		b.WriteString("\n\n")
	}
	b.WriteString(fmt.Sprintf(`<a href="%s/article/%s">Batafsil o'qish →</a>`, c.siteBaseURL, article.Slug))

	return c.send(ctx, b.String())
}

// send はsendMessage APIを呼び出す。失敗時はログに記録しfalseを返す。
func (c *TelegramClient) send(ctx context.Context, text string) bool {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    c.chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		c.logger.Error("Telegram通知ボディのエンコードに失敗しました",
			slog.String("error", err.Error()),
		)
		return false
	}

	reqURL := fmt.Sprintf("%s/bot%s/sendMessage", c.endpoint, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(string(payload)))
	if err != nil {
		c.logger.Error("Telegram通知リクエストの作成に失敗しました",
			slog.String("error", err.Error()),
		)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Telegram通知の送信に失敗しました",
			slog.String("error", err.Error()),
		)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Telegram APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return false
	}

	return true
}

// escapeHTML はTelegramのHTMLパースモードで特別扱いされる文字をエスケープする。
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
