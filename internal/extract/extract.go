package extract

import (
	"regexp"
	"strings"
)

// 宽松的 URL 模式：scheme + 常见 URL 字符集；末字符不能是 ?!:,.; 这类句读符号。
const urlPattern = `(?:https?|ftp)://[-A-Z0-9+&@#/%?=~_|!:,.;]*[-A-Z0-9+&@#/%=~_|]`

var (
	urlRE      = regexp.MustCompile(`(?i)\b` + urlPattern)
	anchoredRE = regexp.MustCompile(`(?i)^` + urlPattern)
)

// Extract 按出现顺序返回 text 中的候选 URL（保留重复项）。
// 没有匹配时返回 nil。
func Extract(text string) []string {
	matches := urlRE.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		// 形如 "(https://...)" 的正文可能把 '(' 带进来。
		m = strings.TrimPrefix(m, "(")
		if m == "" {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TokenAt 返回从 text[i] 开始、按同一模式能匹配到的完整 URL；不匹配时返回空串。
//
// 用于判断某处子串是否是一个“完整”的 URL，而不是更长 URL 的前缀。
func TokenAt(text string, i int) string {
	if i < 0 || i >= len(text) {
		return ""
	}
	return anchoredRE.FindString(text[i:])
}

// IsURL 判断 s 整体是否就是一个候选 URL。
func IsURL(s string) bool {
	return s != "" && anchoredRE.FindString(s) == s
}
