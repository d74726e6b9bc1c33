package handlers

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/domain/entities"
)

// EventHandler 任务事件流接口
type EventHandler struct {
	service contracts.TaskService
}

// NewEventHandler 创建事件流处理器
func NewEventHandler(service contracts.TaskService) *EventHandler {
	return &EventHandler{service: service}
}

// Stream 任务事件流 (SSE)
// @Summary 任务事件流
// @Description 使用Server-Sent Events推送任务事件。首帧为snapshot全量状态,
// @Description 随后按发生顺序推送增量;任务终止后连接关闭。
// @Description EventSource无法携带请求头时,可通过 ?token= 传递令牌。
// @Tags 任务
// @Produce text/event-stream
// @Param id path string true "任务ID"
// @Param token query string false "访问令牌"
// @Success 200 {string} string "text/event-stream"
// @Failure 404 {object} map[string]interface{} "任务不存在"
// @Router /tasks/{id}/events [get]
func (h *EventHandler) Stream(c *gin.Context) {
	stream, unsubscribe, err := h.service.Subscribe(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	taskID := c.Param("id")
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-stream:
			if !ok {
				// 终止事件正常结束流;未经终止事件的关闭说明
				// 订阅方消费过慢被分发器摘除
				errEvent := entities.NewErrorEvent(taskID, "事件流已中断，请重新订阅")
				c.SSEvent(string(errEvent.Type), errEvent)
				return false
			}
			c.SSEvent(string(event.Type), event)
			return !event.Terminal()

		case <-ctx.Done():
			return false
		}
	})
}
