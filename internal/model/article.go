// Package model はドメインモデルを定義する。
package model

import "time"

// Article は公開済みのニュース記事を表す。
// SourceURLは全記事で一意であり、取り込みパイプラインの重複判定キーとなる。
// SlugはURL用の一意な識別子で、タイトルから導出される。
type Article struct {
	ID          string
	Title       string
	Slug        string
	Description string
	Content     string // サニタイズ済みHTML
	ImageURL    string
	SourceURL   string
	SourceName  string
	CategoryID  string
	PublishedAt time.Time
	CreatedAt   time.Time
	Views       int
	Likes       int
	IsBreaking  bool
	IsFeatured  bool
}

// ParsedEntry はフィードパーサーが生成する未保存のエントリを表す。
// 1回のパイプライン実行の中でのみ存在し、永続化されない。
type ParsedEntry struct {
	Title       string
	Description string // クリーニング済み、300文字以内
	Content     string // クリーニング済み全文
	Link        string // 重複判定キー
	ImageURL    string
	PublishedAt time.Time
}

// EnrichedEntry はAIによる書き換え・翻訳を経たエントリを表す。
// 書き換えが無効または失敗した場合は元のテキストがそのまま入る。
type EnrichedEntry struct {
	Title       string
	Description string
	Content     string
	Slug        string
}
