package classify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/John-Robertt/imgsaver/internal/domain"
	"github.com/John-Robertt/imgsaver/internal/infra/imgx"
)

// Classifier 用一次 HEAD 请求判断远程 URL 是否是图片（不下载 body）。
type Classifier struct {
	Client *http.Client
}

func New(c *http.Client) *Classifier {
	return &Classifier{Client: c}
}

// Classify 返回探测结论。
//
// 任何网络错误、超时、缺失 Content-Type 都视为“非图片”；此时 error 仅用于日志，
// 调用方不应据此中断处理。响应状态码不参与判定。
func (c *Classifier) Classify(ctx context.Context, rawURL string) (domain.AssetClassification, error) {
	out := domain.AssetClassification{URL: rawURL, Reason: domain.ClassProbeFailed}
	if c == nil || c.Client == nil {
		return out, errors.New("classify: http client 为空")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return out, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return out, err
	}
	// HEAD 没有 body，但仍要 drain + close 才能复用连接。
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	ct := strings.TrimSpace(resp.Header.Get("Content-Type"))
	out.ContentType = ct
	switch {
	case ct == "":
		out.Reason = domain.ClassNoContentType
	case imgx.IsImageContentType(ct):
		out.IsImage = true
		out.Reason = domain.ClassImage
	default:
		out.Reason = domain.ClassNotImage
	}
	return out, nil
}
