package ingest

import (
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

// placeholderImageURL は画像が見つからないエントリで使用する既定画像。
const placeholderImageURL = "https://images.unsplash.com/photo-1504711434969-e33886168f5c?w=800&h=600&fit=crop"

// imageStrategy はフィードアイテムから画像URLを抽出する戦略。
// 抽出できない場合は空文字列を返す。
type imageStrategy func(item *gofeed.Item) string

// imageStrategies は画像抽出戦略の優先順リスト。
// 上から順に試行し、最初に見つかったURLを採用する。
var imageStrategies = []imageStrategy{
	fromMediaContent,
	fromMediaThumbnail,
	fromEnclosure,
	fromContentHTML,
	fromDescriptionHTML,
}

// resolveImage はフィードアイテムの画像URLを決定する。
// すべての戦略が失敗した場合はプレースホルダー画像を返す。
func resolveImage(item *gofeed.Item) string {
	for _, strategy := range imageStrategies {
		if url := strategy(item); url != "" {
			return url
		}
	}
	return placeholderImageURL
}

// fromMediaContent はmedia:content拡張から画像URLを抽出する。
func fromMediaContent(item *gofeed.Item) string {
	return mediaExtensionURL(item, "content")
}

// fromMediaThumbnail はmedia:thumbnail拡張から画像URLを抽出する。
func fromMediaThumbnail(item *gofeed.Item) string {
	return mediaExtensionURL(item, "thumbnail")
}

// mediaExtensionURL はMedia RSS拡張のurl属性を取り出す。
func mediaExtensionURL(item *gofeed.Item, name string) string {
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}
	for _, ext := range media[name] {
		if url := ext.Attrs["url"]; url != "" {
			return url
		}
	}
	return ""
}

// fromEnclosure はenclosure要素から画像URLを抽出する。
// MIMEタイプがimage/*であるか、URLの拡張子が画像形式の場合に採用する。
func fromEnclosure(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") || hasImageExtension(enc.URL) {
			return enc.URL
		}
	}
	return ""
}

// fromContentHTML は本文HTML中の最初の<img>から画像URLを抽出する。
func fromContentHTML(item *gofeed.Item) string {
	return firstInlineImage(item.Content)
}

// fromDescriptionHTML は概要HTML中の最初の<img>から画像URLを抽出する。
func fromDescriptionHTML(item *gofeed.Item) string {
	return firstInlineImage(item.Description)
}

// firstInlineImage はHTML断片をトークナイズし、最初の<img>のsrc属性を返す。
// 壊れたHTMLでもトークナイザーはエラーで停止するだけなので安全に扱える。
func firstInlineImage(fragment string) string {
	if fragment == "" {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == "src" && len(val) > 0 {
					return string(val)
				}
				if !more {
					break
				}
			}
		}
	}
}

// imageExtensions は画像として扱うURL拡張子。
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// hasImageExtension はURLのパス部分が画像拡張子で終わるかを判定する。
func hasImageExtension(rawURL string) bool {
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	lower := strings.ToLower(path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
