package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	DefaultProbeTimeout    = 20 * time.Second
	DefaultDownloadTimeout = 2 * time.Minute
)

// Transport 把“UA 池 + 代理 + keep-alive 策略”固化为统一策略。
//
// 不做重试：单次失败直接返回，由上层把该 URL 记为失败。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// UserAgent 非空时固定使用，否则每个请求从 UA 池随机取一个。
	UserAgent string

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		if ua := strings.TrimSpace(t.UserAgent); ua != "" {
			r.Header.Set("User-Agent", ua)
		} else {
			r.Header.Set("User-Agent", t.ua.random())
		}
	}
	if t.DisableKeepAlives {
		r.Close = true
	}
	return t.Base.RoundTrip(r)
}

// ClientOptions 是构造 client 的全部输入（由 config.Options 映射而来）。
type ClientOptions struct {
	ProxyURL  string
	UserAgent string
	Timeout   time.Duration
}

// NewProbeClient 构造用于 HEAD 探测的 HTTP client。
//
// 规则：
// - 总超时默认 20s（探测不读 body，超时即视为非图片）
// - proxyURL 非空：走代理，且禁用 keep-alive
func NewProbeClient(o ClientOptions) (*http.Client, error) {
	if o.Timeout <= 0 {
		o.Timeout = DefaultProbeTimeout
	}
	return newClient(o)
}

// NewDownloadClient 构造用于图片下载的 HTTP client。
//
// 总超时覆盖整个 body 读取过程，所以默认值比探测宽松得多。
func NewDownloadClient(o ClientOptions) (*http.Client, error) {
	if o.Timeout <= 0 {
		o.Timeout = DefaultDownloadTimeout
	}
	return newClient(o)
}

func newClient(o ClientOptions) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   8,
	}

	disableKeepAlives := false
	if proxyURL := strings.TrimSpace(o.ProxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("代理地址缺少 scheme 或 host：" + proxyURL)
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	tr := &Transport{
		Base:              base,
		ua:                globalUA,
		UserAgent:         o.UserAgent,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   o.Timeout,
	}, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	// 部分图床会拒绝非浏览器 UA，这里用几个常见桌面浏览器。
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
