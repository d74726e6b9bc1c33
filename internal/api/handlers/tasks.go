package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/userfetch/userfetch/internal/api/utils"
	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/shared/errors"
)

// TaskHandler 采集任务接口
type TaskHandler struct {
	service contracts.TaskService
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(service contracts.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// Create 提交采集任务
// @Summary 创建任务
// @Description 提交一次采集任务;未指定用户列表时使用配置中的用户列表
// @Tags 任务
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body contracts.TaskCreateRequest true "创建任务请求"
// @Success 200 {object} contracts.TaskResponse
// @Failure 400 {object} map[string]interface{} "用户列表为空"
// @Router /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	var req contracts.TaskCreateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errors.New(errors.ErrorCodeInvalidRequest, "请求参数错误"))
			return
		}
	}

	resp, err := h.service.CreateTask(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// List 任务列表
// @Summary 任务列表
// @Description 按创建时间倒序分页返回任务
// @Tags 任务
// @Produce json
// @Security BearerAuth
// @Param offset query int false "偏移量" default(0)
// @Param limit query int false "每页条数(1-200)" default(50)
// @Success 200 {object} contracts.TaskListResponse
// @Router /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	var req contracts.TaskListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(errors.New(errors.ErrorCodeInvalidRequest, "分页参数错误"))
		return
	}

	resp, err := h.service.ListTasks(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// Get 任务详情
// @Summary 任务详情
// @Tags 任务
// @Produce json
// @Security BearerAuth
// @Param id path string true "任务ID"
// @Success 200 {object} contracts.TaskResponse
// @Failure 404 {object} map[string]interface{} "任务不存在"
// @Router /tasks/{id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	resp, err := h.service.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// Logs 任务日志
// @Summary 任务日志
// @Description 返回任务的全部留存日志(环形缓冲,最多1000条)
// @Tags 任务
// @Produce json
// @Security BearerAuth
// @Param id path string true "任务ID"
// @Success 200 {object} contracts.TaskLogsResponse
// @Failure 404 {object} map[string]interface{} "任务不存在"
// @Router /tasks/{id}/logs [get]
func (h *TaskHandler) Logs(c *gin.Context) {
	resp, err := h.service.GetTaskLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}

// Cancel 取消任务
// @Summary 取消任务
// @Description 排队中的任务立即取消;执行中的任务在当前用户处理完后停止
// @Tags 任务
// @Produce json
// @Security BearerAuth
// @Param id path string true "任务ID"
// @Success 200 {object} contracts.TaskResponse
// @Failure 404 {object} map[string]interface{} "任务不存在"
// @Failure 409 {object} map[string]interface{} "任务已结束"
// @Router /tasks/{id}/cancel [post]
func (h *TaskHandler) Cancel(c *gin.Context) {
	resp, err := h.service.CancelTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	utils.OK(c, resp)
}
