package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/imgsaver/internal/config"
	"github.com/John-Robertt/imgsaver/internal/domain"
	"github.com/John-Robertt/imgsaver/internal/extract"
	"github.com/John-Robertt/imgsaver/internal/infra/fsx"
	"github.com/John-Robertt/imgsaver/internal/rewrite"
	"github.com/John-Robertt/imgsaver/internal/scan"
)

// Execute 执行一次完整运行：准备输出目录 -> 遍历 -> 每处 URL 一个任务 -> 等待全部完成。
//
// 单个 URL/文件的失败只记录在报告中；只有输出目录不可用或根目录无法遍历时返回 error。
// 返回前一定已等待所有任务结束。
func Execute(ctx context.Context, cfg config.Options, deps Deps, obs Observer) (domain.RunReport, error) {
	started := time.Now()
	log := deps.Logger

	if obs != nil {
		obs.OnStart(cfg)
	}

	rr := domain.RunReport{
		Root:      cfg.Directory,
		Output:    cfg.OutputDir,
		StartedAt: started,
		Items:     make([]domain.URLResult, 0, 64),
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now()
		rr.Finalize()
		return rr
	}

	if deps.Classifier == nil || deps.Downloader == nil {
		return finish(), errors.New("run: Classifier/Downloader 不能为空")
	}

	created := false
	if _, err := os.Stat(cfg.OutputDir); errors.Is(err, os.ErrNotExist) {
		created = true
	}
	if err := fsx.EnsureDir(cfg.OutputDir); err != nil {
		return finish(), fmt.Errorf("创建输出目录失败：%w", err)
	}
	log.Debug().Str("dir", cfg.OutputDir).Bool("created", created).Msg("输出目录就绪")
	if obs != nil {
		obs.OnOutputReady(cfg.OutputDir, created)
	}

	var (
		g   errgroup.Group
		mu  sync.Mutex
		reg = rewrite.NewRegistry()
	)
	record := func(r domain.URLResult) {
		mu.Lock()
		rr.Items = append(rr.Items, r)
		mu.Unlock()
	}

	visit := func(entry domain.FileEntry) {
		var urls []string
		if cfg.HTML && extract.IsHTMLFile(entry.Path) {
			urls = extract.ExtractHTML(entry.Content)
		} else {
			urls = extract.Extract(entry.Content)
		}
		if len(urls) == 0 {
			return
		}
		log.Debug().Str("path", entry.RelPath).Int("urls", len(urls)).Msg("发现候选 URL")

		doc := reg.Open(entry)
		for _, u := range urls {
			u := u
			g.Go(func() error {
				record(processURL(ctx, cfg, deps, obs, doc, entry, u))
				return nil
			})
		}
	}

	res, walkErr := scan.Walk(cfg.Directory, scan.Options{
		Ignored: cfg.Ignored,
		Exclude: []string{cfg.OutputDir},
	}, visit)

	// 任务永远返回 nil；Wait 只用于等待全部结束。
	_ = g.Wait()

	for _, s := range res.Skipped {
		log.Warn().Str("path", s.RelPath).Str("reason", s.Reason).Err(s.Err).Msg("跳过文件")
		rr.Skipped = append(rr.Skipped, domain.SkippedFile{File: s.RelPath, Reason: s.Reason})
		if obs != nil {
			obs.OnFileSkipped(s)
		}
	}
	rr.Summary.Files = res.Files

	out := finish()
	if obs != nil {
		obs.OnDone(out, time.Since(started))
	}
	if walkErr != nil {
		return out, fmt.Errorf("遍历目录失败：%w", walkErr)
	}
	return out, nil
}

// processURL 处理一处 URL 出现：探测 -> 下载 -> 写回。
func processURL(ctx context.Context, cfg config.Options, deps Deps, obs Observer, doc *rewrite.Document, entry domain.FileEntry, url string) domain.URLResult {
	log := deps.Logger.With().Str("path", entry.RelPath).Str("url", url).Logger()
	res := domain.URLResult{File: entry.RelPath, URL: url}

	cls, err := deps.Classifier.Classify(ctx, url)
	if err != nil {
		log.Debug().Err(err).Msg("探测失败，按非图片处理")
	}
	res.ContentType = cls.ContentType
	if !cls.IsImage {
		log.Debug().Str("reason", cls.Reason).Msg("非图片")
		res.Status = domain.StatusNotImage
		return res
	}

	asset, reused, err := deps.Cache.Do(ctx, url, func() (domain.DownloadedAsset, error) {
		return deps.Downloader.Download(ctx, url, cls.ContentType)
	})
	if err != nil {
		log.Warn().Err(err).Msg("下载失败")
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeDownloadFailed
		res.ErrorMsg = err.Error()
		if obs != nil {
			obs.OnURLFailed(entry.RelPath, url, err)
		}
		return res
	}

	ref := cfg.LocalReference(asset.LocalFileName)
	res.LocalRef = ref
	res.Reused = reused

	ok, err := doc.Replace(url, ref)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("写回失败")
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeWriteFailed
		res.ErrorMsg = err.Error()
	case !ok:
		err = fmt.Errorf("文本中已找不到 %s", url)
		log.Warn().Msg("写回时找不到 URL")
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeURLNotFound
		res.ErrorMsg = err.Error()
	default:
		log.Info().Str("ref", ref).Bool("reused", reused).Int64("bytes", asset.Bytes).Msg("已替换")
		res.Status = domain.StatusReplaced
		if obs != nil {
			obs.OnReplaced(entry.RelPath, url, ref, reused)
		}
		return res
	}
	if obs != nil {
		obs.OnURLFailed(entry.RelPath, url, err)
	}
	return res
}
