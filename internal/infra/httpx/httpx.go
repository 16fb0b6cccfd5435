package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/NXMM/internal/infra/fsx"
)

const (
	// 下载对象是整包 zip（可能几十 MB），总超时要远大于页面抓取场景。
	defaultTimeout  = 5 * time.Minute
	defaultRetryMax = 2
)

// Transport 把“UA 池 + 代理 + keep-alive 策略 + 有界重试”固化为统一策略。
//
// 设计目标：上层（engine/repo）只描述“下载哪个 URL 到哪”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int

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

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 {
		max = 0
	}
	if !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := cloneRequest(req)
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", t.ua.random())
		}
		if t.DisableKeepAlives {
			// 额外保险：即使上层误用了其它 Transport，也尽量不复用连接。
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func cloneRequest(req *http.Request) *http.Request {
	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	return req.Clone(req.Context())
}

// NewClient 构造用于 zip/文件下载的 HTTP client。
//
// 规则：
// - proxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - 内置 UA 池：每个请求随机 UA
// - 有界重试 + 总超时
func NewClient(proxyURL string) (*http.Client, error) {
	proxyURL = strings.TrimSpace(proxyURL)

	base := &http.Transport{
		Proxy:                 nil,
		DisableKeepAlives:     false,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	disableKeepAlives := false
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	tr := &Transport{
		Base:              base,
		ua:                globalUA,
		RetryMax:          defaultRetryMax,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   defaultTimeout,
	}, nil
}

// DownloadFile 把 url 的响应体下载到 dst（临时文件 + rename，失败不留半截文件）。
// 非 2xx 状态码视为失败并带状态码返回。
func DownloadFile(ctx context.Context, c *http.Client, rawURL, dst string) error {
	if c == nil {
		return errors.New("http client 为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return fsx.Rename(tmpName, dst)
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
	// 尽量保持 UA 列表短小但多样；未来可扩充（不对外暴露配置）。
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
