package imgx

import (
	"mime"
	"strings"
)

// IsImageContentType 判断 Content-Type 是否表示图片：值以字面量 "image" 开头即可。
//
// 注意：这里刻意不做大小写归一化，与 HEAD 探测的判定保持同一口径。
func IsImageContentType(ct string) bool {
	return strings.HasPrefix(strings.TrimSpace(ct), "image")
}

// Subtype 返回 Content-Type 中 '/' 之后的部分（去掉参数、转小写）。
// 没有 '/' 时返回空串。
func Subtype(ct string) string {
	ct = strings.TrimSpace(ct)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	} else if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	_, sub, ok := strings.Cut(strings.ToLower(strings.TrimSpace(ct)), "/")
	if !ok {
		return ""
	}
	return strings.TrimSpace(sub)
}

// 常见子类型到扩展名的映射；未列出的子类型走 sanitize。
var subtypeExt = map[string]string{
	"jpeg":                ".jpg",
	"pjpeg":               ".jpg",
	"jpg":                 ".jpg",
	"svg+xml":             ".svg",
	"x-icon":              ".ico",
	"vnd.microsoft.icon":  ".ico",
	"tiff":                ".tiff",
	"x-ms-bmp":            ".bmp",
	"vnd.adobe.photoshop": ".psd",
	"heic-sequence":       ".heics",
	"heif-sequence":       ".heifs",
}

// ExtensionFor 由 Content-Type 的子类型推导本地扩展名（带前导 '.'）。
//
// 规则：
// - 已知子类型查表（image/jpeg -> .jpg，image/svg+xml -> .svg）
// - 其它子类型原样使用，但 [a-z0-9.-] 之外的字符替换为 '-'，避免生成非法文件名
// - 子类型为空时返回 ".img"
func ExtensionFor(ct string) string {
	sub := Subtype(ct)
	if ext, ok := subtypeExt[sub]; ok {
		return ext
	}
	sub = sanitize(sub)
	if sub == "" {
		return ".img"
	}
	return "." + sub
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), ".-")
}
