package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestNewClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:8080")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives {
		t.Fatalf("期望禁用 keep-alive，但 Base.DisableKeepAlives=false")
	}
	if !tr.DisableKeepAlives {
		t.Fatalf("期望设置 Request.Close=true 的额外保险，但 DisableKeepAlives=false")
	}
}

func TestNewClient_NoProxyKeepsDefault(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if tr.Base.DisableKeepAlives {
		t.Fatalf("不期望禁用 keep-alive，但 Base.DisableKeepAlives=true")
	}
}

func TestNewClient_InvalidProxyURL(t *testing.T) {
	_, err := NewClient("http://[::1")
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("zip-bytes"))
	}))
	defer srv.Close()

	c, err := NewClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	dst := filepath.Join(t.TempDir(), "repos", "main.zip")
	if err := DownloadFile(context.Background(), c, srv.URL, dst); err != nil {
		t.Fatalf("下载失败：%v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("读取下载文件失败：%v", err)
	}
	if string(b) != "zip-bytes" {
		t.Fatalf("期望 zip-bytes，实际 %q", b)
	}
}

func TestDownloadFile_HTTPErrorLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, err := NewClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	dst := filepath.Join(t.TempDir(), "main.zip")
	if err := DownloadFile(context.Background(), c, srv.URL, dst); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("失败下载不应留下目标文件，实际 err=%v", err)
	}
}
