package rewrite

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/John-Robertt/imgsaver/internal/domain"
	"github.com/John-Robertt/imgsaver/internal/extract"
	"github.com/John-Robertt/imgsaver/internal/infra/fsx"
)

// Rewrite 把 original 中 url 的一处出现替换为 ref。
//
// 优先替换第一处“完整 token”出现（该位置按 URL 模式匹配到的正好是 url），
// 避免把更长 URL 的前缀改坏；找不到时退化为第一处字面出现。
// 没有任何出现时返回 (original, false)。
func Rewrite(original, url, ref string) (string, bool) {
	if url == "" {
		return original, false
	}
	first := strings.Index(original, url)
	if first < 0 {
		return original, false
	}

	at := -1
	for i := first; i >= 0; {
		if extract.TokenAt(original, i) == url {
			at = i
			break
		}
		next := strings.Index(original[i+1:], url)
		if next < 0 {
			break
		}
		i = i + 1 + next
	}
	if at < 0 {
		at = first
	}
	return original[:at] + ref + original[at+len(url):], true
}

// Document 是一个文件在本次运行中的内存视图。
//
// 同一文件的所有替换都经由同一个 Document 串行执行，
// 每次替换基于上一次替换后的文本，并以原子替换的方式落盘。
type Document struct {
	path string
	mode fs.FileMode

	mu   sync.Mutex
	text string
}

// Path 返回落盘使用的真实路径（已解析符号链接）。
func (d *Document) Path() string { return d.path }

// Text 返回当前内存中的文本。
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Replace 把一处 url 替换为 ref 并写回磁盘。
//
// 返回 false 且 err 为 nil 表示文本中已找不到该 url。
// 写入失败时内存文本保持不变，与磁盘保持一致。
func (d *Document) Replace(url, ref string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, ok := Rewrite(d.text, url, ref)
	if !ok {
		return false, nil
	}
	if err := fsx.WriteFileAtomicReplace(filepath.Dir(d.path), filepath.Base(d.path), []byte(next), d.mode); err != nil {
		return false, err
	}
	d.text = next
	return true, nil
}

// Registry 保证同一个真实文件只对应一个 Document。
type Registry struct {
	mu   sync.Mutex
	docs map[string]*Document
}

func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]*Document)}
}

// Open 返回 entry 对应的 Document。
//
// 多个路径（例如符号链接）指向同一真实文件时共享同一个 Document，
// 其初始文本取第一次 Open 时的内容。
func (r *Registry) Open(entry domain.FileEntry) *Document {
	key := entry.Path
	if resolved, err := filepath.EvalSymlinks(entry.Path); err == nil {
		key = resolved
	}
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.docs[key]; ok {
		return d
	}
	d := &Document{path: key, mode: entry.Mode, text: entry.Content}
	r.docs[key] = d
	return d
}

// Len 返回已打开的文档数量。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}
