package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"github.com/davron/realnews/internal/model"
)

// descriptionMaxRunes は概要の最大文字数。超過分は省略記号付きで切り詰める。
const descriptionMaxRunes = 300

// TagStripper はテキストからHTMLマークアップを除去するインターフェース。
type TagStripper interface {
	StripTags(input string) string
}

var (
	whitespaceRuns = regexp.MustCompile(`\s+`)
	entityRefs     = regexp.MustCompile(`&[^;]+;`)
)

// Parser はフィードXMLをParsedEntryの列に変換する。
// gofeedによるパース、テキストのクリーニング、画像URLの決定を行う。
type Parser struct {
	stripper  TagStripper
	itemLimit int
	now       func() time.Time // テスト用に差し替え可能
}

// NewParser はParserの新しいインスタンスを生成する。
// itemLimitが0以下の場合は件数制限なしとして扱う。
func NewParser(stripper TagStripper, itemLimit int) *Parser {
	return &Parser{
		stripper:  stripper,
		itemLimit: itemLimit,
		now:       time.Now,
	}
}

// Parse はフィードXMLをパースしてエントリに変換する。
// タイトルまたはリンクを欠くアイテムはスキップし、上限件数までを返す。
// アイテムが空のフィードは空スライスを返す（エラーにはしない）。
func (p *Parser) Parse(body []byte) ([]model.ParsedEntry, error) {
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	entries := make([]model.ParsedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if p.itemLimit > 0 && len(entries) >= p.itemLimit {
			break
		}
		if item == nil || strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.Link) == "" {
			continue
		}

		// 画像抽出はマークアップ除去より先に行う（<img>タグを走査するため）
		imageURL := resolveImage(item)

		rawDescription := item.Description
		if rawDescription == "" {
			rawDescription = item.Content
		}
		rawContent := item.Content
		if rawContent == "" {
			rawContent = item.Description
		}

		entry := model.ParsedEntry{
			Title:       p.cleanText(item.Title),
			Description: truncateRunes(p.cleanText(rawDescription), descriptionMaxRunes),
			Content:     p.cleanText(rawContent),
			Link:        strings.TrimSpace(item.Link),
			ImageURL:    imageURL,
		}

		switch {
		case item.PublishedParsed != nil:
			entry.PublishedAt = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			entry.PublishedAt = *item.UpdatedParsed
		default:
			entry.PublishedAt = p.now()
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// cleanText はHTMLマークアップを除去し、実体参照を空白1文字に置換してから
// 空白を正規化する。実体参照は復元せず空白に潰す。
func (p *Parser) cleanText(s string) string {
	s = p.stripper.StripTags(s)
	s = entityRefs.ReplaceAllString(s, " ")
	s = whitespaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// truncateRunes は文字数上限を超えるテキストを省略記号付きで切り詰める。
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}
