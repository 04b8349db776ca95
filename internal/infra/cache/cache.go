package cache

import (
	"context"
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/John-Robertt/imgsaver/internal/domain"
)

// DefaultSize 是 AssetCache 默认容纳的 URL 数。
const DefaultSize = 4096

// AssetCache 在单次运行内按 URL 复用下载结果（--dedupe）。
//
// 约束：
// - 只存在于内存，进程退出即丢弃（不做跨运行去重）
// - 同一 URL 并发到达时只下载一次，其余调用等待首个结果
// - 下载失败的条目会被移除，后续出现的同一 URL 会重新下载
type AssetCache struct {
	lru *lru.Cache[string, *entry]
}

type entry struct {
	done  chan struct{}
	asset domain.DownloadedAsset
	err   error
}

func New(size int) (*AssetCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, *entry](size)
	if err != nil {
		return nil, err
	}
	return &AssetCache{lru: c}, nil
}

// Do 返回 url 对应的下载结果；首次出现时调用 fetch。
// reused=true 表示结果来自此前（或并发中）的另一次调用。
func (c *AssetCache) Do(ctx context.Context, url string, fetch func() (domain.DownloadedAsset, error)) (asset domain.DownloadedAsset, reused bool, err error) {
	if c == nil {
		a, err := fetch()
		return a, false, err
	}
	key := strings.TrimSpace(url)
	if key == "" {
		return domain.DownloadedAsset{}, false, errors.New("cache: url 不能为空")
	}

	mine := &entry{done: make(chan struct{})}
	prev, found, _ := c.lru.PeekOrAdd(key, mine)
	if found {
		select {
		case <-prev.done:
			return prev.asset, true, prev.err
		case <-ctx.Done():
			return domain.DownloadedAsset{}, true, ctx.Err()
		}
	}

	mine.asset, mine.err = fetch()
	close(mine.done)
	if mine.err != nil {
		if cur, ok := c.lru.Peek(key); ok && cur == mine {
			c.lru.Remove(key)
		}
	}
	return mine.asset, false, mine.err
}

// Len 返回当前缓存的 URL 数（含进行中的下载）。
func (c *AssetCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
