package domain

import "io/fs"

// FileEntry 是遍历阶段读出的一份文本文件。
//
// 不变量：
// - Content 只在遍历时读取一次；后续替换都基于 rewrite.Document 内的同一份文本
// - Path 是遍历得到的路径（未解析 symlink），RelPath 相对扫描根目录
type FileEntry struct {
	Path    string
	RelPath string
	Content string
	Mode    fs.FileMode
}

// Classify 的结论原因（仅用于报告与日志）。
const (
	ClassImage         = "image"
	ClassNotImage      = "not_image"
	ClassNoContentType = "no_content_type"
	ClassProbeFailed   = "probe_failed"
)

// AssetClassification 是一次 HEAD 探测的结论，不落盘。
type AssetClassification struct {
	URL         string
	IsImage     bool
	ContentType string // 探测失败或无 header 时为空
	Reason      string // Class* 之一
}

// DownloadedAsset 描述一次成功的下载。
type DownloadedAsset struct {
	SourceURL      string
	LocalFileName  string // 含扩展名，例如 "1739091200000-3f2a9c1d.png"
	LocalExtension string // ".png"
	Bytes          int64
}
