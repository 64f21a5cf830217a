// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, article, feed, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeArticleNotFound  = "ARTICLE_NOT_FOUND"
	ErrCodeCategoryNotFound = "CATEGORY_NOT_FOUND"
	ErrCodeFeedNotFound     = "FEED_NOT_FOUND"
	ErrCodeInvalidURL       = "INVALID_URL"
	ErrCodeSSRFBlocked      = "SSRF_BLOCKED"
	ErrCodeInvalidQuery     = "INVALID_QUERY"
	ErrCodeInvalidEmail     = "INVALID_EMAIL"
	ErrCodeInvalidBody      = "INVALID_BODY"
	ErrCodeDuplicateFeed    = "DUPLICATE_FEED"
	ErrCodeDuplicateArticle = "DUPLICATE_ARTICLE"
)

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", ref),
		Category: "article",
		Action:   "記事のIDまたはスラッグを確認してください。",
	}
}

// NewCategoryNotFoundError はカテゴリ未検出エラーを生成する。
func NewCategoryNotFoundError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNotFound,
		Message:  fmt.Sprintf("指定されたカテゴリが見つかりません: %s", slug),
		Category: "article",
		Action:   "カテゴリのスラッグを確認してください。",
	}
}

// NewFeedNotFoundError はフィード未検出エラーを生成する。
func NewFeedNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  fmt.Sprintf("指定されたフィードが見つかりません: %s", id),
		Category: "feed",
		Action:   "フィードIDを確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewInvalidQueryError は無効な検索クエリエラーを生成する。
func NewInvalidQueryError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuery,
		Message:  "検索クエリが指定されていません。",
		Category: "validation",
		Action:   "クエリパラメータ q に検索語を指定してください。",
	}
}

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "validation",
		Action:   "有効なメールアドレスを入力してください。",
	}
}

// NewInvalidBodyError は無効なリクエストボディエラーを生成する。
func NewInvalidBodyError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBody,
		Message:  fmt.Sprintf("リクエストボディが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの内容を確認してください。",
	}
}

// NewDuplicateArticleError は取り込み元URLが重複する記事の登録エラーを生成する。
func NewDuplicateArticleError(sourceURL string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateArticle,
		Message:  fmt.Sprintf("同じ取り込み元URLの記事が既に存在します: %s", sourceURL),
		Category: "article",
		Action:   "既存の記事を確認してください。",
	}
}

// NewDuplicateFeedError は登録済みフィードの再登録エラーを生成する。
func NewDuplicateFeedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateFeed,
		Message:  fmt.Sprintf("このフィードは既に登録されています: %s", url),
		Category: "feed",
		Action:   "フィード一覧から該当フィードを確認してください。",
	}
}
