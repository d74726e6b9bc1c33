package contracts

import (
	"context"

	"github.com/userfetch/userfetch/internal/domain/entities"
)

// SettingsResponse 配置响应;Cookie仅指示是否已配置,不回传原文
type SettingsResponse struct {
	Settings  entities.DownloaderSettings `json:"settings"`
	HasCookie bool                        `json:"has_cookie"`
}

// SettingsUpdateRequest 配置更新请求,整体覆盖;Cookie为空串时保留原值
type SettingsUpdateRequest struct {
	Settings entities.DownloaderSettings `json:"settings"`
}

// SettingsService 全局抓取配置管理
type SettingsService interface {
	Get(ctx context.Context) (*SettingsResponse, error)
	Update(ctx context.Context, req SettingsUpdateRequest) (*SettingsResponse, error)
	// Current 返回解密后的完整配置,供任务执行使用
	Current(ctx context.Context) (entities.DownloaderSettings, error)
}
