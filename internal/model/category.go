package model

import "time"

// Category はニュースのカテゴリを表す。
type Category struct {
	ID        string
	Name      string
	Slug      string
	Icon      string
	Color     string
	CreatedAt time.Time
}

// CategoryWithCount はカテゴリと所属記事数を結合したモデル。
type CategoryWithCount struct {
	Category
	ArticleCount int
}
