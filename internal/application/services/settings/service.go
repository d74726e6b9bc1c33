// Package settings 管理全局采集配置的持久化与下载目录策略。
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/domain/entities"
	"github.com/userfetch/userfetch/internal/infrastructure/secretbox"
	"github.com/userfetch/userfetch/internal/shared/errors"
	"github.com/userfetch/userfetch/pkg/logger"
)

// PathPolicy 下载目录策略
type PathPolicy struct {
	DefaultRoot  string   // 默认下载根目录
	AllowedRoots []string // 受限模式下允许的根目录
	Restricted   bool
}

// Service 配置服务,Cookie落盘前加密
type Service struct {
	file   string
	box    *secretbox.Box
	policy PathPolicy

	mu      sync.RWMutex
	current entities.DownloaderSettings
}

var _ contracts.SettingsService = (*Service)(nil)

// NewService 创建配置服务并加载既有配置,文件缺失时写入默认配置
func NewService(file string, box *secretbox.Box, policy PathPolicy) (*Service, error) {
	s := &Service{file: file, box: box, policy: policy}

	loaded, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current = loaded
	return s, nil
}

// Get 实现 contracts.SettingsService
func (s *Service) Get(ctx context.Context) (*contracts.SettingsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responseLocked(), nil
}

// Update 实现 contracts.SettingsService;空Cookie保留原值
func (s *Service) Update(ctx context.Context, req contracts.SettingsUpdateRequest) (*contracts.SettingsResponse, error) {
	next := req.Settings
	next.Normalize()
	if err := next.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrorCodeInvalidRequest, err.Error(), err)
	}

	resolved, err := s.resolveDownloadPath(next.DownloadPath)
	if err != nil {
		return nil, err
	}
	next.DownloadPath = resolved

	if next.MaxTasks < 1 {
		return nil, errors.New(errors.ErrorCodeInvalidRequest, "并发任务上限必须大于 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if next.Cookie == "" {
		next.Cookie = s.current.Cookie
	}
	if err := s.persistLocked(next); err != nil {
		return nil, err
	}
	s.current = next

	logger.Info("settings updated", "users", len(next.UserList), "max_tasks", next.MaxTasks)
	return s.responseLocked(), nil
}

// Current 实现 contracts.SettingsService
func (s *Service) Current(ctx context.Context) (entities.DownloaderSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := s.current
	cp.UserList = append([]entities.UserTarget(nil), s.current.UserList...)
	return cp, nil
}

func (s *Service) responseLocked() *contracts.SettingsResponse {
	visible := s.current
	visible.UserList = append([]entities.UserTarget(nil), s.current.UserList...)
	visible.Cookie = ""
	return &contracts.SettingsResponse{
		Settings:  visible,
		HasCookie: s.current.Cookie != "",
	}
}

// resolveDownloadPath 归一化下载目录并执行目录策略
func (s *Service) resolveDownloadPath(raw string) (string, error) {
	if raw == "" {
		raw = s.policy.DefaultRoot
	}
	if !filepath.IsAbs(raw) {
		raw = filepath.Join(s.policy.DefaultRoot, raw)
	}
	cleaned := filepath.Clean(raw)

	if s.policy.Restricted {
		allowed := false
		for _, root := range s.policy.AllowedRoots {
			if isWithinRoot(cleaned, root) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", errors.New(errors.ErrorCodeInvalidRequest,
				fmt.Sprintf("下载目录不在允许范围内: %s", cleaned))
		}
	}
	return cleaned, nil
}

func isWithinRoot(path, root string) bool {
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

func (s *Service) load() (entities.DownloaderSettings, error) {
	defaults := entities.DefaultSettings(filepath.Clean(s.policy.DefaultRoot))

	raw, err := os.ReadFile(s.file)
	if os.IsNotExist(err) {
		if err := s.persistLocked(defaults); err != nil {
			return defaults, err
		}
		return defaults, nil
	}
	if err != nil {
		return defaults, err
	}

	loaded := defaults
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return defaults, fmt.Errorf("配置文件损坏 %s: %w", s.file, err)
	}

	cookie, err := s.box.Decrypt(loaded.Cookie)
	if err != nil {
		// 密钥更换后旧密文无法恢复,丢弃Cookie但保留其余配置
		logger.Warn("failed to decrypt stored cookie, discarding", "error", err)
		cookie = ""
	}
	loaded.Cookie = cookie
	loaded.Normalize()
	return loaded, nil
}

// persistLocked 加密Cookie后原子写盘
func (s *Service) persistLocked(settings entities.DownloaderSettings) error {
	onDisk := settings
	ciphered, err := s.box.Encrypt(settings.Cookie)
	if err != nil {
		return errors.Wrap(errors.ErrorCodeInternalError, "Cookie 加密失败", err)
	}
	onDisk.Cookie = ciphered

	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.file), 0755); err != nil {
		return err
	}
	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.file)
}
