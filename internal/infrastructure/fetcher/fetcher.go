// Package fetcher 封装对抓取服务的HTTP调用。
// 任务执行器按用户逐个调用,由全局QPS限流器约束请求频率。
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/userfetch/userfetch/internal/domain/entities"
	"github.com/userfetch/userfetch/internal/shared/errors"
)

// UserResult 单用户抓取结果
type UserResult struct {
	New     int `json:"new"`
	Skipped int `json:"skipped"`
}

// Fetcher 用户作品抓取能力
type Fetcher interface {
	// FetchUser 抓取单个用户的作品,阻塞至完成、出错或ctx取消
	FetchUser(ctx context.Context, target entities.UserTarget, settings entities.DownloaderSettings) (*UserResult, error)
}

// Client 基于HTTP的抓取客户端
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient 创建抓取客户端,qps为0时不限流
func NewClient(baseURL string, qps int) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if qps > 0 {
		limiter = rate.NewLimiter(rate.Limit(qps), qps)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		limiter: limiter,
	}
}

type fetchRequest struct {
	URL         string `json:"url"`
	Nickname    string `json:"nickname,omitempty"`
	Cookie      string `json:"cookie,omitempty"`
	PageCounts  int    `json:"page_counts,omitempty"`
	MaxCounts   *int   `json:"max_counts,omitempty"`
	Mode        string `json:"mode,omitempty"`
	Incremental bool   `json:"incremental"`
	Threshold   int    `json:"threshold,omitempty"`
	ProxyHTTP   string `json:"proxy_http,omitempty"`
	ProxyHTTPS  string `json:"proxy_https,omitempty"`
	Path        string `json:"path,omitempty"`
	Folderize   bool   `json:"folderize"`
	Naming      string `json:"naming,omitempty"`
	Interval    string `json:"interval,omitempty"`
}

type fetchResponse struct {
	New     int    `json:"new"`
	Skipped int    `json:"skipped"`
	Detail  string `json:"detail,omitempty"`
}

// FetchUser 实现 Fetcher
func (c *Client) FetchUser(ctx context.Context, target entities.UserTarget, settings entities.DownloaderSettings) (*UserResult, error) {
	if _, err := url.ParseRequestURI(target.URL); err != nil {
		return nil, errors.New(errors.ErrorCodeInvalidRequest, fmt.Sprintf("用户链接无效: %s", target.URL))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload := fetchRequest{
		URL:         target.URL,
		Nickname:    target.Name,
		Cookie:      settings.Cookie,
		PageCounts:  settings.PageCounts,
		MaxCounts:   settings.MaxCounts,
		Mode:        settings.Mode,
		Incremental: settings.IncrementalMode,
		Threshold:   settings.IncrementalThreshold,
		ProxyHTTP:   settings.ProxyHTTP,
		ProxyHTTPS:  settings.ProxyHTTPS,
		Path:        settings.DownloadPath,
		Folderize:   settings.Folderize,
		Naming:      settings.Naming,
		Interval:    settings.Interval,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fetch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fetch/user", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var out fetchResponse
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if json.Unmarshal(raw, &out) == nil && out.Detail != "" {
			return nil, errors.New(errors.ErrorCodeInternalError, out.Detail)
		}
		return nil, errors.New(errors.ErrorCodeInternalError,
			fmt.Sprintf("抓取服务返回异常状态 %d", resp.StatusCode))
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &UserResult{New: out.New, Skipped: out.Skipped}, nil
}
