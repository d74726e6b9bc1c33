package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/userfetch/userfetch/internal/api/utils"
	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/shared/errors"
)

// ScheduleHandler 定时计划接口
type ScheduleHandler struct {
	service contracts.ScheduleService
}

// NewScheduleHandler 创建计划处理器
func NewScheduleHandler(service contracts.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: service}
}

// Create 创建定时计划
// @Summary 创建计划
// @Description 创建按cron表达式定时触发的采集计划
// @Tags 计划
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body contracts.ScheduleCreateRequest true "创建计划请求"
// @Success 200 {object} contracts.ScheduleResponse
// @Failure 400 {object} map[string]interface{} "Cron表达式无效"
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req contracts.ScheduleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.New(errors.ErrorCodeInvalidRequest, "请求参数错误"))
		return
	}

	resp, err := h.service.CreateSchedule(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// List 计划列表
// @Summary 计划列表
// @Tags 计划
// @Produce json
// @Security BearerAuth
// @Success 200 {array} contracts.ScheduleResponse
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	resp, err := h.service.ListSchedules(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// Get 计划详情
// @Summary 计划详情
// @Tags 计划
// @Produce json
// @Security BearerAuth
// @Param id path string true "计划ID"
// @Success 200 {object} contracts.ScheduleResponse
// @Failure 404 {object} map[string]interface{} "计划不存在"
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	resp, err := h.service.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// Update 更新计划
// @Summary 更新计划
// @Description 部分更新计划字段;启用中的计划会重算下次执行时间
// @Tags 计划
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "计划ID"
// @Param request body contracts.ScheduleUpdateRequest true "更新计划请求"
// @Success 200 {object} contracts.ScheduleResponse
// @Failure 404 {object} map[string]interface{} "计划不存在"
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req contracts.ScheduleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.New(errors.ErrorCodeInvalidRequest, "请求参数错误"))
		return
	}

	resp, err := h.service.UpdateSchedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// Delete 删除计划
// @Summary 删除计划
// @Tags 计划
// @Produce json
// @Security BearerAuth
// @Param id path string true "计划ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{} "计划不存在"
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteSchedule(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, gin.H{"deleted": true})
}

// Toggle 启停计划
// @Summary 启停计划
// @Description 翻转计划启用状态;启用时重算下次执行时间,禁用时清空
// @Tags 计划
// @Produce json
// @Security BearerAuth
// @Param id path string true "计划ID"
// @Success 200 {object} contracts.ScheduleResponse
// @Failure 404 {object} map[string]interface{} "计划不存在"
// @Router /schedules/{id}/toggle [post]
func (h *ScheduleHandler) Toggle(c *gin.Context) {
	resp, err := h.service.ToggleSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// RunNow 立即执行计划
// @Summary 立即执行
// @Description 立即以计划的用户列表提交一次任务,不影响既定节奏
// @Tags 计划
// @Produce json
// @Security BearerAuth
// @Param id path string true "计划ID"
// @Success 200 {object} contracts.ScheduleRunResponse
// @Failure 404 {object} map[string]interface{} "计划不存在"
// @Router /schedules/{id}/run-now [post]
func (h *ScheduleHandler) RunNow(c *gin.Context) {
	resp, err := h.service.RunNow(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}
