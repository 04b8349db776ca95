package extract

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 只看承载图片的属性；普通 <a href> 不参与，避免对网页链接做无谓的 HEAD 探测。
var imageAttrs = []struct {
	sel    string
	attr   string
	srcset bool
}{
	{"img[src]", "src", false},
	{"img[srcset]", "srcset", true},
	{"source[srcset]", "srcset", true},
	{`input[type="image"][src]`, "src", false},
	{"video[poster]", "poster", false},
	{"link[rel~=icon][href]", "href", false},
	{`link[rel="apple-touch-icon"][href]`, "href", false},
	{`meta[property="og:image"][content]`, "content", false},
	{`meta[name="twitter:image"][content]`, "content", false},
}

// IsHTMLFile 判断路径是否按 HTML 解析。
func IsHTMLFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return true
	default:
		return false
	}
}

// ExtractHTML 从 HTML 文本的图片属性中提取候选 URL。
//
// 规则：
// - 属性值必须整体是一个候选 URL（相对路径、data: 等直接忽略）
// - 属性值必须在原文中字面出现（实体转义过的值无法就地替换，忽略）
// - 结果按原文中的出现位置排序，重复项保留
//
// HTML 无法解析时退化为 Extract。
func ExtractHTML(text string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return Extract(text)
	}

	counts := map[string]int{}
	order := make([]string, 0, 8)
	add := func(v string) {
		v = strings.TrimPrefix(strings.TrimSpace(v), "(")
		if !IsURL(v) || !strings.Contains(text, v) {
			return
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	for _, a := range imageAttrs {
		doc.Find(a.sel).Each(func(_ int, s *goquery.Selection) {
			v, ok := s.Attr(a.attr)
			if !ok {
				return
			}
			if !a.srcset {
				add(v)
				return
			}
			for _, part := range strings.Split(v, ",") {
				if f := strings.Fields(part); len(f) > 0 {
					add(f[0])
				}
			}
		})
	}
	if len(order) == 0 {
		return nil
	}

	// 每个 URL 取原文中前 counts[u] 次出现的位置参与排序。
	type hit struct {
		off int
		url string
	}
	hits := make([]hit, 0, len(order))
	for _, u := range order {
		from := 0
		for n := 0; n < counts[u]; n++ {
			i := strings.Index(text[from:], u)
			if i < 0 {
				// 属性出现次数多于字面出现次数（例如同一值被多个选择器命中）：按已找到的为准。
				break
			}
			hits = append(hits, hit{off: from + i, url: u})
			from += i + len(u)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].off < hits[j].off })

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.url)
	}
	return out
}
