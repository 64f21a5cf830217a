package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/davron/realnews/internal/model"
)

// PostgresPushSubscriptionRepo はPostgreSQLを使用したWebプッシュ購読リポジトリ。
type PostgresPushSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresPushSubscriptionRepo はPostgresPushSubscriptionRepoを生成する。
func NewPostgresPushSubscriptionRepo(db *sql.DB) *PostgresPushSubscriptionRepo {
	return &PostgresPushSubscriptionRepo{db: db}
}

// Upsert はエンドポイントをキーに購読を冪等に登録する。
// 既存エンドポイントの場合は鍵情報を更新し、再有効化する。
func (r *PostgresPushSubscriptionRepo) Upsert(ctx context.Context, sub *model.PushSubscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (id, endpoint, p256dh, auth, user_agent, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (endpoint) DO UPDATE SET
		    p256dh = EXCLUDED.p256dh,
		    auth = EXCLUDED.auth,
		    user_agent = EXCLUDED.user_agent,
		    is_active = TRUE`,
		sub.ID, sub.Endpoint, sub.P256dh, sub.Auth,
		nullString(sub.UserAgent), sub.IsActive, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("プッシュ購読の登録に失敗しました: %w", err)
	}
	return nil
}

// DeactivateByEndpoint は指定エンドポイントの購読を無効化する。
func (r *PostgresPushSubscriptionRepo) DeactivateByEndpoint(ctx context.Context, endpoint string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE push_subscriptions SET is_active = FALSE WHERE endpoint = $1`, endpoint)
	if err != nil {
		return fmt.Errorf("プッシュ購読の無効化に失敗しました: %w", err)
	}
	return nil
}

// DeleteInactiveBefore は指定日時より前に登録され、無効化された購読を削除する。
func (r *PostgresPushSubscriptionRepo) DeleteInactiveBefore(ctx context.Context, before time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE NOT is_active AND created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("プッシュ購読の削除に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の確認に失敗しました: %w", err)
	}
	return int(affected), nil
}
