package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/imgsaver/internal/domain"
)

func TestAssetCache_ConcurrentSameURLDownloadsOnce(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func() (domain.DownloadedAsset, error) {
		calls.Add(1)
		<-release
		return domain.DownloadedAsset{SourceURL: "http://h/a.png", LocalFileName: "1-abc.png"}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]domain.DownloadedAsset, n)
	var reusedCount atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, reused, err := c.Do(context.Background(), "http://h/a.png", fetch)
			assert.NoError(t, err)
			if reused {
				reusedCount.Add(1)
			}
			results[i] = a
		}(i)
	}

	// 首个调用占位后再放行；之后到达的调用要么在等待，要么直接拿到已完成的结果。
	require.Eventually(t, func() bool { return c.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, int32(n-1), reusedCount.Load())
	for _, a := range results {
		require.Equal(t, "1-abc.png", a.LocalFileName)
	}
}

func TestAssetCache_FailureIsNotCached(t *testing.T) {
	c, err := New(16)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, _, err = c.Do(context.Background(), "http://h/a.png", func() (domain.DownloadedAsset, error) {
		return domain.DownloadedAsset{}, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, c.Len())

	a, reused, err := c.Do(context.Background(), "http://h/a.png", func() (domain.DownloadedAsset, error) {
		return domain.DownloadedAsset{LocalFileName: "ok.png"}, nil
	})
	require.NoError(t, err)
	require.False(t, reused)
	require.Equal(t, "ok.png", a.LocalFileName)
}

func TestAssetCache_NilPassThrough(t *testing.T) {
	var c *AssetCache
	calls := 0
	for i := 0; i < 2; i++ {
		_, reused, err := c.Do(context.Background(), "http://h/a.png", func() (domain.DownloadedAsset, error) {
			calls++
			return domain.DownloadedAsset{}, nil
		})
		require.NoError(t, err)
		require.False(t, reused)
	}
	require.Equal(t, 2, calls)
}

