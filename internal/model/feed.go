package model

import "time"

// FeedSource は取り込み対象のRSSフィード設定を表す。
// 管理者によって登録され、パイプラインはLastFetchedAtのみを更新する。
type FeedSource struct {
	ID            string
	URL           string
	Name          string
	CategoryID    string
	IsActive      bool
	LastFetchedAt *time.Time
	CreatedAt     time.Time
}
