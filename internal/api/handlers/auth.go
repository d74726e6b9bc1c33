package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/userfetch/userfetch/internal/api/middleware"
	"github.com/userfetch/userfetch/internal/api/utils"
	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/shared/errors"
)

// AuthHandler 鉴权接口
type AuthHandler struct {
	service contracts.AuthService
}

// NewAuthHandler 创建鉴权处理器
func NewAuthHandler(service contracts.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// Status 查询鉴权状态
// @Summary 鉴权状态
// @Description 返回访问密码是否已设置及可选下载根目录
// @Tags 鉴权
// @Produce json
// @Success 200 {object} contracts.AuthStatusResponse
// @Router /auth/status [get]
func (h *AuthHandler) Status(c *gin.Context) {
	resp, err := h.service.Status(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// Setup 首次设置访问密码
// @Summary 设置访问密码
// @Description 首次设置访问密码并返回访问令牌,已设置过时返回409
// @Tags 鉴权
// @Accept json
// @Produce json
// @Param request body contracts.AuthSetupRequest true "设置密码请求"
// @Success 200 {object} contracts.AuthTokenResponse
// @Failure 400 {object} map[string]interface{} "密码不符合要求"
// @Failure 409 {object} map[string]interface{} "密码已设置"
// @Router /auth/setup [post]
func (h *AuthHandler) Setup(c *gin.Context) {
	var req contracts.AuthSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.New(errors.ErrorCodeInvalidRequest, "请求参数错误"))
		return
	}

	resp, err := h.service.Setup(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// Login 密码登录
// @Summary 登录
// @Description 校验访问密码并签发令牌;连续失败会触发临时封禁
// @Tags 鉴权
// @Accept json
// @Produce json
// @Param request body contracts.AuthLoginRequest true "登录请求"
// @Success 200 {object} contracts.AuthTokenResponse
// @Failure 401 {object} map[string]interface{} "密码错误"
// @Failure 429 {object} map[string]interface{} "登录已被临时封禁"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req contracts.AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.New(errors.ErrorCodeInvalidRequest, "请求参数错误"))
		return
	}

	resp, err := h.service.Login(c.Request.Context(), middleware.ClientKey(c), req)
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// ChangePassword 修改访问密码
// @Summary 修改密码
// @Description 校验旧密码后更新访问密码,既有令牌全部失效
// @Tags 鉴权
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body contracts.AuthChangePasswordRequest true "修改密码请求"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{} "旧密码错误"
// @Router /auth/password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req contracts.AuthChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.New(errors.ErrorCodeInvalidRequest, "请求参数错误"))
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword); err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, gin.H{"changed": true})
}
