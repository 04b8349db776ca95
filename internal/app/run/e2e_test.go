package run

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/imgsaver/internal/classify"
	"github.com/John-Robertt/imgsaver/internal/config"
	"github.com/John-Robertt/imgsaver/internal/domain"
	"github.com/John-Robertt/imgsaver/internal/download"
	"github.com/John-Robertt/imgsaver/internal/infra/cache"
	"github.com/John-Robertt/imgsaver/internal/infra/fsx"
	"github.com/John-Robertt/imgsaver/internal/scan"
)

// imageServer 模拟一组远端资源；gets 记录每个路径被 GET 的次数。
type imageServer struct {
	*httptest.Server
	gets sync.Map // path -> *atomic.Int32
}

func newImageServer(t *testing.T) *imageServer {
	t.Helper()
	s := &imageServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			v, _ := s.gets.LoadOrStore(r.URL.Path, new(atomic.Int32))
			v.(*atomic.Int32).Add(1)
		}
		switch r.URL.Path {
		case "/a.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("PNG-A"))
		case "/b.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("JPG-B"))
		case "/broken.png":
			w.Header().Set("Content-Type", "image/png")
			if r.Method == http.MethodGet {
				w.WriteHeader(http.StatusInternalServerError)
			}
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html></html>"))
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *imageServer) getCount(path string) int32 {
	v, ok := s.gets.Load(path)
	if !ok {
		return 0
	}
	return v.(*atomic.Int32).Load()
}

func setup(t *testing.T, srv *imageServer, files map[string]string) (config.Options, Deps) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	cfg := config.Options{
		Directory: root,
		Output:    "img",
		OutputDir: filepath.Join(root, "img"),
	}
	deps := Deps{
		Classifier: classify.New(srv.Client()),
		Downloader: download.New(srv.Client(), cfg.OutputDir),
		Logger:     zerolog.Nop(),
	}
	return cfg, deps
}

var localRefRE = regexp.MustCompile(`img/[0-9]{13}-[0-9a-f]{8}\.(png|jpg)`)

func readFile(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(b)
}

func outputFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestExecute_DuplicateURLBothRewritten(t *testing.T) {
	srv := newImageServer(t)
	u := srv.URL + "/a.png"
	cfg, deps := setup(t, srv, map[string]string{"notes.md": "one " + u + "\ntwo " + u + "\n"})

	rr, err := Execute(context.Background(), cfg, deps, nil)
	require.NoError(t, err)

	got := readFile(t, filepath.Join(cfg.Directory, "notes.md"))
	require.NotContains(t, got, u)
	refs := localRefRE.FindAllString(got, -1)
	require.Len(t, refs, 2)
	require.NotEqual(t, refs[0], refs[1])

	require.Len(t, outputFiles(t, cfg.OutputDir), 2)
	require.Equal(t, int32(2), srv.getCount("/a.png"))
	require.Equal(t, 2, rr.Summary.Replaced)
	require.Equal(t, 1, rr.Summary.Files)
}

func TestExecute_TwoDistinctURLsInOneFile(t *testing.T) {
	srv := newImageServer(t)
	a, b := srv.URL+"/a.png", srv.URL+"/b.jpg"
	cfg, deps := setup(t, srv, map[string]string{"doc.txt": "![a](" + a + ") and ![b](" + b + ")"})

	_, err := Execute(context.Background(), cfg, deps, nil)
	require.NoError(t, err)

	got := readFile(t, filepath.Join(cfg.Directory, "doc.txt"))
	require.NotContains(t, got, a)
	require.NotContains(t, got, b)
	require.Regexp(t, `^!\[a\]\(img/[0-9]{13}-[0-9a-f]{8}\.png\) and !\[b\]\(img/[0-9]{13}-[0-9a-f]{8}\.jpg\)$`, got)

	for _, name := range outputFiles(t, cfg.OutputDir) {
		body := readFile(t, filepath.Join(cfg.OutputDir, name))
		require.Contains(t, got, "img/"+name)
		if strings.HasSuffix(name, ".png") {
			require.Equal(t, "PNG-A", body)
		} else {
			require.Equal(t, "JPG-B", body)
		}
	}
}

func TestExecute_IgnoredExtensionUntouched(t *testing.T) {
	srv := newImageServer(t)
	u := srv.URL + "/a.png"
	content := "see " + u
	cfg, deps := setup(t, srv, map[string]string{"keep.md": content, "change.txt": content})
	cfg.Ignore = []string{".md"}

	rr, err := Execute(context.Background(), cfg, deps, nil)
	require.NoError(t, err)

	require.Equal(t, content, readFile(t, filepath.Join(cfg.Directory, "keep.md")))
	require.NotEqual(t, content, readFile(t, filepath.Join(cfg.Directory, "change.txt")))
	require.Equal(t, 1, rr.Summary.Files)
	require.Empty(t, rr.Skipped)
}

func TestExecute_FailedDownloadKeepsOtherReplacements(t *testing.T) {
	srv := newImageServer(t)
	good, bad, page := srv.URL+"/a.png", srv.URL+"/broken.png", srv.URL+"/index.html"
	cfg, deps := setup(t, srv, map[string]string{"mix.md": good + " " + bad + " " + page})

	rr, err := Execute(context.Background(), cfg, deps, nil)
	require.NoError(t, err)

	got := readFile(t, filepath.Join(cfg.Directory, "mix.md"))
	require.NotContains(t, got, good)
	require.Contains(t, got, bad)
	require.Contains(t, got, page)

	byURL := map[string]domain.URLResult{}
	for _, it := range rr.Items {
		byURL[it.URL] = it
	}
	require.Equal(t, domain.StatusReplaced, byURL[good].Status)
	require.Equal(t, domain.StatusFailed, byURL[bad].Status)
	require.Equal(t, domain.ErrCodeDownloadFailed, byURL[bad].ErrorCode)
	require.Equal(t, domain.StatusNotImage, byURL[page].Status)
	require.Equal(t, domain.ReportSummary{Files: 1, URLs: 3, Images: 2, Replaced: 1, Failed: 1}, rr.Summary)

	// 失败的下载不会留下任何文件（包括临时文件）。
	require.Len(t, outputFiles(t, cfg.OutputDir), 1)
}

func TestExecute_DedupeDownloadsOnce(t *testing.T) {
	srv := newImageServer(t)
	u := srv.URL + "/a.png"
	cfg, deps := setup(t, srv, map[string]string{
		"a.md":     u + " " + u,
		"sub/b.md": u,
	})
	c, err := cache.New(0)
	require.NoError(t, err)
	deps.Cache = c

	rr, err := Execute(context.Background(), cfg, deps, nil)
	require.NoError(t, err)

	require.Equal(t, int32(1), srv.getCount("/a.png"))
	files := outputFiles(t, cfg.OutputDir)
	require.Len(t, files, 1)
	ref := "img/" + files[0]

	require.Equal(t, ref+" "+ref, readFile(t, filepath.Join(cfg.Directory, "a.md")))
	require.Equal(t, ref, readFile(t, filepath.Join(cfg.Directory, "sub", "b.md")))

	reused := 0
	for _, it := range rr.Items {
		if it.Reused {
			reused++
		}
	}
	require.Equal(t, 2, reused)
}

func TestExecute_PrefixAndOutputDirNotRescanned(t *testing.T) {
	srv := newImageServer(t)
	u := srv.URL + "/a.png"
	cfg, deps := setup(t, srv, map[string]string{
		"a.md":          u,
		"img/stale.txt": "old " + u,
	})
	cfg.Prefix = "/static/"

	rr, err := Execute(context.Background(), cfg, deps, nil)
	require.NoError(t, err)

	require.Regexp(t, `^/static/[0-9]{13}-[0-9a-f]{8}\.png$`, readFile(t, filepath.Join(cfg.Directory, "a.md")))
	require.Equal(t, "old "+u, readFile(t, filepath.Join(cfg.OutputDir, "stale.txt")))
	require.Equal(t, 1, rr.Summary.Files)
}

func TestExecute_SkipsBinaryAndReports(t *testing.T) {
	srv := newImageServer(t)
	cfg, deps := setup(t, srv, map[string]string{
		"blob.bin": "x\x00" + srv.URL + "/a.png",
		"ok.md":    "nothing here",
	})

	rr, err := Execute(context.Background(), cfg, deps, nil)
	require.NoError(t, err)
	require.Equal(t, []domain.SkippedFile{{File: "blob.bin", Reason: scan.ReasonBinary}}, rr.Skipped)
	require.Empty(t, rr.Items)
	require.Equal(t, int32(0), srv.getCount("/a.png"))
}

func TestExecute_OutputPathIsFile(t *testing.T) {
	srv := newImageServer(t)
	cfg, deps := setup(t, srv, map[string]string{"img": "i am a file"})

	_, err := Execute(context.Background(), cfg, deps, nil)
	require.Error(t, err)
	require.True(t, fsx.IsPathTypeConflict(err))
}

func TestExecute_MissingRootIsError(t *testing.T) {
	srv := newImageServer(t)
	cfg, deps := setup(t, srv, nil)
	cfg.Directory = filepath.Join(cfg.Directory, "nope")

	_, err := Execute(context.Background(), cfg, deps, nil)
	require.Error(t, err)
}

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	created    bool
	replaced   []string
	failed     []string
	skipped    []string
	done       int
}

func (o *recordObserver) OnStart(cfg config.Options) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnOutputReady(dir string, created bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = created
}

func (o *recordObserver) OnFileSkipped(s scan.Skipped) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped = append(o.skipped, s.RelPath)
}

func (o *recordObserver) OnReplaced(file, url, ref string, reused bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replaced = append(o.replaced, url)
}

func (o *recordObserver) OnURLFailed(file, url string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, url)
}

func (o *recordObserver) OnDone(rr domain.RunReport, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done++
}

func TestExecute_EmitsObserverEvents(t *testing.T) {
	srv := newImageServer(t)
	good, bad := srv.URL+"/a.png", srv.URL+"/broken.png"
	cfg, deps := setup(t, srv, map[string]string{
		"a.md":     good + " " + bad,
		"blob.bin": "\x00",
	})

	obs := &recordObserver{}
	_, err := Execute(context.Background(), cfg, deps, obs)
	require.NoError(t, err)

	require.Equal(t, 1, obs.startCalls)
	require.True(t, obs.created)
	require.Equal(t, []string{good}, obs.replaced)
	require.Equal(t, []string{bad}, obs.failed)
	require.Equal(t, []string{"blob.bin"}, obs.skipped)
	require.Equal(t, 1, obs.done)
}

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, url string) (domain.AssetClassification, error) {
	return domain.AssetClassification{URL: url, IsImage: true, ContentType: "image/png", Reason: domain.ClassImage}, nil
}

type failingDownloader struct{ calls atomic.Int32 }

func (d *failingDownloader) Download(ctx context.Context, url, contentType string) (domain.DownloadedAsset, error) {
	d.calls.Add(1)
	return domain.DownloadedAsset{}, errors.New("boom")
}

func TestExecute_NilObserverSameResult(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("http://x.test/a.png"), 0o644))
	cfg := config.Options{Directory: root, Output: "img", OutputDir: filepath.Join(root, "img")}

	dl := &failingDownloader{}
	deps := Deps{Classifier: stubClassifier{}, Downloader: dl, Logger: zerolog.Nop()}

	a, err := Execute(context.Background(), cfg, deps, nil)
	require.NoError(t, err)
	b, err := Execute(context.Background(), cfg, deps, &recordObserver{})
	require.NoError(t, err)

	a.StartedAt, a.FinishedAt = time.Time{}, time.Time{}
	b.StartedAt, b.FinishedAt = time.Time{}, time.Time{}
	require.Equal(t, a, b)
	require.Equal(t, int32(2), dl.calls.Load())
	require.Equal(t, "http://x.test/a.png", readFile(t, filepath.Join(root, "a.md")))
}
