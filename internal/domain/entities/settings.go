package entities

import (
	"fmt"
	"regexp"
	"strings"
)

// UserTarget 采集目标用户
type UserTarget struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// 命名模板仅允许固定变量,分隔符仅支持 _ 或 -
var allowedNamingPattern = regexp.MustCompile(
	`^\{(?:nickname|create|item_id|desc|uid)\}(?:[_-]\{(?:nickname|create|item_id|desc|uid)\})*$`,
)

// DownloaderSettings 采集器配置
type DownloaderSettings struct {
	UserList []UserTarget `json:"user_list"`
	Cookie   string       `json:"cookie"`

	MaxTasks   int  `json:"max_tasks"`   // 并发任务上限
	PageCounts int  `json:"page_counts"` // 单页抓取条数
	MaxCounts  *int `json:"max_counts"`  // 单用户抓取上限,nil为不限

	Timeout        int `json:"timeout"`         // 单次请求超时(秒)
	MaxRetries     int `json:"max_retries"`     // 单用户抓取重试次数
	MaxConnections int `json:"max_connections"` // 并发连接数

	Mode      string `json:"mode"`
	Folderize bool   `json:"folderize"`
	Naming    string `json:"naming"`
	Interval  string `json:"interval"`

	IncrementalMode      bool `json:"incremental_mode"`
	IncrementalThreshold int  `json:"incremental_threshold"`

	ProxyHTTP  string `json:"proxy_http"`
	ProxyHTTPS string `json:"proxy_https"`

	DownloadPath string `json:"download_path"`
}

// DefaultSettings 返回默认配置
func DefaultSettings(downloadPath string) DownloaderSettings {
	return DownloaderSettings{
		UserList:             []UserTarget{},
		MaxTasks:             3,
		PageCounts:           20,
		Timeout:              10,
		MaxRetries:           5,
		MaxConnections:       5,
		Mode:                 "post",
		Naming:               "{create}_{desc}",
		Interval:             "all",
		IncrementalMode:      true,
		IncrementalThreshold: 20,
		DownloadPath:         downloadPath,
	}
}

// Normalize 规整配置字段(用户列表去空白与空URL)
func (s *DownloaderSettings) Normalize() {
	s.UserList = NormalizeUserList(s.UserList)
	s.Naming = strings.TrimSpace(s.Naming)
	s.ProxyHTTP = strings.TrimSpace(s.ProxyHTTP)
	s.ProxyHTTPS = strings.TrimSpace(s.ProxyHTTPS)
	s.DownloadPath = strings.TrimSpace(s.DownloadPath)
}

// Validate 校验配置合法性
func (s *DownloaderSettings) Validate() error {
	if s.Naming == "" {
		return fmt.Errorf("命名模板不能为空")
	}
	if !allowedNamingPattern.MatchString(s.Naming) {
		return fmt.Errorf("命名模板仅支持 {nickname}/{create}/{item_id}/{desc}/{uid}，分隔符仅支持 _ 或 -")
	}
	if err := validateProxy(s.ProxyHTTP, "HTTP"); err != nil {
		return err
	}
	if err := validateProxy(s.ProxyHTTPS, "HTTPS"); err != nil {
		return err
	}
	return nil
}

func validateProxy(raw, protocol string) error {
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return nil
	}
	return fmt.Errorf("%s 代理地址必须以 http:// 或 https:// 开头", protocol)
}

// NormalizeUserList 规整用户列表: 去首尾空白,丢弃空URL条目
func NormalizeUserList(raw []UserTarget) []UserTarget {
	normalized := make([]UserTarget, 0, len(raw))
	for _, item := range raw {
		name := strings.TrimSpace(item.Name)
		url := strings.TrimSpace(item.URL)
		if url == "" {
			continue
		}
		normalized = append(normalized, UserTarget{Name: name, URL: url})
	}
	return normalized
}
