package scan

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/imgsaver/internal/domain"
)

// 跳过原因（写入报告，也用于日志）。
const (
	ReasonReadFailed = "read_failed"
	ReasonStatFailed = "stat_failed"
	ReasonWalkFailed = "walk_failed"
	ReasonNotRegular = "not_regular"
	ReasonBinary     = "binary"
	ReasonNotUTF8    = "not_utf8"
)

// Options 控制遍历行为。
type Options struct {
	// Ignored 返回 true 的扩展名（filepath.Ext 结果）直接跳过，不读内容、不记入 Skipped。
	Ignored func(ext string) bool
	// Exclude 中的目录（绝对路径）整体跳过，例如位于扫描根目录之下的输出目录。
	Exclude []string
}

// Skipped 描述一个被跳过的文件（非致命）。
type Skipped struct {
	Path    string
	RelPath string
	Reason  string
	Err     error
}

// Result 是一次遍历的统计。
type Result struct {
	Files   int // 成功读取并交给 visit 的文件数
	Skipped []Skipped
}

// Walk 深度优先遍历 root，把每个可读的文本文件交给 visit。
//
// 规则：
// - 目录无条件递归（按 WalkDir 的字典序，不跟随目录 symlink）
// - 扩展名命中 Ignored 的文件直接跳过
// - 非 UTF-8 / 二进制 / 读取失败的文件记入 Skipped，遍历继续
// - 只有 root 本身不可用时返回 error
//
// visit 在遍历 goroutine 内同步调用；文件内容只读取这一次。
func Walk(root string, opts Options, visit func(domain.FileEntry)) (Result, error) {
	root = filepath.Clean(root)
	fi, err := os.Stat(root)
	if err != nil {
		return Result{}, fmt.Errorf("无法访问扫描目录 %q：%w", root, err)
	}
	if !fi.IsDir() {
		return Result{}, fmt.Errorf("扫描目录 %q 不是目录", root)
	}

	// 只有严格位于 root 之下的目录才有排除意义；等于或包含 root 的条目会把整棵树排除掉。
	excluded := make([]string, 0, len(opts.Exclude))
	for _, x := range opts.Exclude {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		x = filepath.Clean(x)
		if x != root && isUnder(x, root) {
			excluded = append(excluded, x)
		}
	}

	var res Result
	skip := func(path, reason string, err error) {
		res.Skipped = append(res.Skipped, Skipped{Path: path, RelPath: relOf(root, path), Reason: reason, Err: err})
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			// 目录读取失败：记录后跳过该目录，不中断整体遍历。
			skip(path, ReasonWalkFailed, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if isExcluded(path, excluded) {
				return filepath.SkipDir
			}
			return nil
		}
		if isExcluded(path, excluded) {
			return nil
		}

		if opts.Ignored != nil && opts.Ignored(filepath.Ext(d.Name())) {
			return nil
		}

		// symlink 以目标为准；FIFO/socket 等读取可能阻塞，直接跳过。
		info, err := os.Stat(path)
		if err != nil {
			skip(path, ReasonStatFailed, err)
			return nil
		}
		if !info.Mode().IsRegular() {
			skip(path, ReasonNotRegular, nil)
			return nil
		}

		b, err := os.ReadFile(path)
		if err != nil {
			skip(path, ReasonReadFailed, err)
			return nil
		}
		if isBinary(b) {
			skip(path, ReasonBinary, nil)
			return nil
		}
		if !utf8.Valid(b) {
			skip(path, ReasonNotUTF8, nil)
			return nil
		}

		res.Files++
		visit(domain.FileEntry{
			Path:    path,
			RelPath: relOf(root, path),
			Content: string(b),
			Mode:    info.Mode().Perm(),
		})
		return nil
	})
	if err != nil {
		return res, err
	}
	return res, nil
}

// IsPermission 判断跳过是否由权限不足导致。
func IsPermission(s Skipped) bool {
	return errors.Is(s.Err, fs.ErrPermission)
}

// isBinary 只看 NUL 字节：合法 UTF-8 文本不会包含 NUL。
func isBinary(b []byte) bool {
	return bytes.IndexByte(b, 0) >= 0
}

func relOf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
