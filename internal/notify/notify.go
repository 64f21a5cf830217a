// Package notify は新着記事の外部チャネルへの通知機能を提供する。
package notify

import (
	"context"
	"log/slog"

	"github.com/davron/realnews/internal/model"
)

// Notifier は記事通知チャネルのインターフェースを定義する。
// 通知はベストエフォートであり、失敗は戻り値のboolで呼び出し元に伝える。
// 通知の失敗が記事の保存を妨げることはない。
type Notifier interface {
	// NotifyArticle は新着記事の通知を送信する。
	NotifyArticle(ctx context.Context, article *model.Article, category *model.Category) bool

	// NotifyUrgent は速報記事の通知を送信する。
	NotifyUrgent(ctx context.Context, article *model.Article, category *model.Category) bool
}

// Multi は複数の通知チャネルへのファンアウトを行うNotifier。
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMulti はMulti の新しいインスタンスを生成する。
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	return &Multi{
		notifiers: notifiers,
		logger:    logger,
	}
}

// NotifyArticle は登録された全チャネルに新着記事の通知を送信する。
// 一部のチャネルが失敗しても残りのチャネルへの送信は継続する。
// 全チャネルが成功した場合のみtrueを返す。
func (m *Multi) NotifyArticle(ctx context.Context, article *model.Article, category *model.Category) bool {
	ok := true
	for _, n := range m.notifiers {
		if !n.NotifyArticle(ctx, article, category) {
			ok = false
		}
	}
	return ok
}

// NotifyUrgent は登録された全チャネルに速報通知を送信する。
func (m *Multi) NotifyUrgent(ctx context.Context, article *model.Article, category *model.Category) bool {
	ok := true
	for _, n := range m.notifiers {
		if !n.NotifyUrgent(ctx, article, category) {
			ok = false
		}
	}
	return ok
}
