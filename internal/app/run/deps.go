package run

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/imgsaver/internal/classify"
	"github.com/John-Robertt/imgsaver/internal/config"
	"github.com/John-Robertt/imgsaver/internal/domain"
	"github.com/John-Robertt/imgsaver/internal/download"
	"github.com/John-Robertt/imgsaver/internal/infra/cache"
	"github.com/John-Robertt/imgsaver/internal/infra/httpx"
)

// Classifier 判断一个 URL 是否指向图片。
type Classifier interface {
	Classify(ctx context.Context, url string) (domain.AssetClassification, error)
}

// Downloader 把图片保存到输出目录。
type Downloader interface {
	Download(ctx context.Context, url, contentType string) (domain.DownloadedAsset, error)
}

// Deps 是 Execute 需要的全部外部协作者。
type Deps struct {
	Classifier Classifier
	Downloader Downloader
	// Cache 为 nil 时不做去重：同一 URL 的每次出现都单独下载。
	Cache  *cache.AssetCache
	Logger zerolog.Logger
}

// NewDeps 按配置构造生产环境使用的 Deps。
func NewDeps(cfg config.Options, logger zerolog.Logger) (Deps, error) {
	co := httpx.ClientOptions{ProxyURL: cfg.ProxyURL, UserAgent: cfg.UserAgent}

	co.Timeout = cfg.ProbeTimeout
	probe, err := httpx.NewProbeClient(co)
	if err != nil {
		return Deps{}, fmt.Errorf("构造探测 client 失败：%w", err)
	}
	co.Timeout = cfg.DownloadTimeout
	dl, err := httpx.NewDownloadClient(co)
	if err != nil {
		return Deps{}, fmt.Errorf("构造下载 client 失败：%w", err)
	}

	d := Deps{
		Classifier: classify.New(probe),
		Downloader: download.New(dl, cfg.OutputDir),
		Logger:     logger,
	}
	if cfg.Dedupe {
		c, err := cache.New(cache.DefaultSize)
		if err != nil {
			return Deps{}, err
		}
		d.Cache = c
	}
	return d, nil
}
