package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// slugMaxLength はスラッグの最大長。
const slugMaxLength = 100

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace   = regexp.MustCompile(`\s+`)
	slugHyphenRuns   = regexp.MustCompile(`-+`)
)

// Slugify はタイトルからURL用スラッグを導出する。
// 英数字以外の文字を除去するため、キリル文字等のみのタイトルでは
// 空になることがある。その場合はタイムスタンプ付きのフォールバック値を返す。
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = slugInvalidChars.ReplaceAllString(s, "")
	s = slugWhitespace.ReplaceAllString(s, "-")
	s = slugHyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > slugMaxLength {
		s = strings.TrimRight(s[:slugMaxLength], "-")
	}

	if s == "" {
		return fmt.Sprintf("untitled-%d", time.Now().UnixMilli())
	}
	return s
}
