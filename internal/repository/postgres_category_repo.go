package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/davron/realnews/internal/model"
)

// PostgresCategoryRepo はPostgreSQLを使用したカテゴリリポジトリ。
type PostgresCategoryRepo struct {
	db *sql.DB
}

// NewPostgresCategoryRepo はPostgresCategoryRepoを生成する。
func NewPostgresCategoryRepo(db *sql.DB) *PostgresCategoryRepo {
	return &PostgresCategoryRepo{db: db}
}

// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindByID(ctx context.Context, id string) (*model.Category, error) {
	return scanCategory(r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, icon, color, created_at FROM categories WHERE id = $1`, id))
}

// FindBySlug はスラッグでカテゴリを検索する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindBySlug(ctx context.Context, slug string) (*model.Category, error) {
	return scanCategory(r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, icon, color, created_at FROM categories WHERE slug = $1`, slug))
}

// List は全カテゴリを名前順で返す。
func (r *PostgresCategoryRepo) List(ctx context.Context) ([]*model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, slug, icon, color, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の読み取りに失敗しました: %w", err)
	}
	return categories, nil
}

// scanCategory は1行をカテゴリにスキャンする。ErrNoRowsの場合は(nil, nil)を返す。
func scanCategory(row rowScanner) (*model.Category, error) {
	category := &model.Category{}
	err := row.Scan(
		&category.ID, &category.Name, &category.Slug,
		&category.Icon, &category.Color, &category.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	return category, nil
}
