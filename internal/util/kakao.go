package util

import "strings"

const (
	KakaoSeeMorePadding = 500
	KakaoZeroWidthSpace = "\u200b"
)

// 카카오톡 '전체보기'용 제로폭 문자를 채워 메시지를 접는다. instruction은 접힌 상태에서 보이는 줄.
func ApplyKakaoSeeMorePadding(text, instruction string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	message := strings.TrimSpace(instruction)

	var builder strings.Builder
	builder.Grow(len(text) + KakaoSeeMorePadding*len(KakaoZeroWidthSpace) + len(message) + 1)
	builder.WriteString(message)
	builder.WriteString(strings.Repeat(KakaoZeroWidthSpace, KakaoSeeMorePadding))
	if !strings.HasPrefix(text, "\n") {
		builder.WriteByte('\n')
	}
	builder.WriteString(text)
	return builder.String()
}

// FoldAfterFirstLine keeps the first line visible and folds the rest behind '전체보기'.
// Single-line text is returned unchanged.
func FoldAfterFirstLine(text string) string {
	head, rest, ok := strings.Cut(strings.TrimSpace(text), "\n")
	if !ok || strings.TrimSpace(rest) == "" {
		return text
	}
	return ApplyKakaoSeeMorePadding(rest, head)
}
