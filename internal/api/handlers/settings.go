package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/userfetch/userfetch/internal/api/utils"
	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/domain/entities"
	"github.com/userfetch/userfetch/internal/shared/errors"
)

// SettingsHandler 采集配置接口
type SettingsHandler struct {
	service contracts.SettingsService
}

// NewSettingsHandler 创建配置处理器
func NewSettingsHandler(service contracts.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// Get 查询采集配置
// @Summary 查询配置
// @Description 返回当前采集配置,Cookie不回传原文
// @Tags 配置
// @Produce json
// @Security BearerAuth
// @Success 200 {object} contracts.SettingsResponse
// @Router /settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	resp, err := h.service.Get(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// Update 更新采集配置
// @Summary 更新配置
// @Description 整体覆盖采集配置;Cookie传空串时保留原值
// @Tags 配置
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body entities.DownloaderSettings true "采集配置"
// @Success 200 {object} contracts.SettingsResponse
// @Failure 400 {object} map[string]interface{} "配置不合法"
// @Router /settings [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	var settings entities.DownloaderSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.Error(errors.New(errors.ErrorCodeInvalidRequest, "请求参数错误"))
		return
	}

	resp, err := h.service.Update(c.Request.Context(), contracts.SettingsUpdateRequest{Settings: settings})
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}
