package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/John-Robertt/imgsaver/internal/domain"
	"github.com/John-Robertt/imgsaver/internal/infra/fsx"
	"github.com/John-Robertt/imgsaver/internal/infra/imgx"
)

// 同名文件已存在时最多换几次名字。
const maxNameAttempts = 3

// Downloader 把确认是图片的 URL 流式保存到输出目录。
//
// 约束：
// - 不做重试：传输错误直接返回
// - 返回时文件已完整落盘（Sync + Close + rename）
type Downloader struct {
	Client    *http.Client
	OutputDir string

	// NewName 可替换，便于测试制造碰撞；nil 时使用包级 NewName。
	NewName func() string
}

func New(c *http.Client, outputDir string) *Downloader {
	return &Downloader{Client: c, OutputDir: outputDir}
}

// Error 是下载阶段的可追溯错误。
type Error struct {
	URL   string
	Stage string // "request" / "status" / "write"
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("下载失败 stage=%s url=%s：%v", e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatusError 表示 GET 返回了非 2xx。
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Download 下载 rawURL 并保存为 OutputDir/<name><ext>。
//
// 扩展名优先取 GET 响应自身的图片 Content-Type，否则使用探测阶段得到的 contentType。
func (d *Downloader) Download(ctx context.Context, rawURL, contentType string) (domain.DownloadedAsset, error) {
	if d == nil || d.Client == nil {
		return domain.DownloadedAsset{}, &Error{URL: rawURL, Stage: "request", Err: errors.New("http client 为空")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.DownloadedAsset{}, &Error{URL: rawURL, Stage: "request", Err: err}
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return domain.DownloadedAsset{}, &Error{URL: rawURL, Stage: "request", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.DownloadedAsset{}, &Error{URL: rawURL, Stage: "status", Err: &HTTPStatusError{StatusCode: resp.StatusCode}}
	}

	ct := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if !imgx.IsImageContentType(ct) {
		ct = contentType
	}
	ext := imgx.ExtensionFor(ct)

	newName := d.NewName
	if newName == nil {
		newName = NewName
	}

	var lastErr error
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := newName() + ext
		n, err := fsx.WriteStreamNoOverwrite(d.OutputDir, name, resp.Body)
		if err == nil {
			return domain.DownloadedAsset{
				SourceURL:      rawURL,
				LocalFileName:  name,
				LocalExtension: ext,
				Bytes:          n,
			}, nil
		}
		lastErr = err
		// 只有在还没读 body（写入前检查即发现重名）时才能换名重来。
		if !errors.Is(err, os.ErrExist) || n != 0 {
			break
		}
	}
	return domain.DownloadedAsset{}, &Error{URL: rawURL, Stage: "write", Err: lastErr}
}
