package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/domain/entities"
)

// stubTaskStream 只实现事件订阅,其余操作不在本测试范围
type stubTaskStream struct {
	ch chan entities.TaskEvent
}

func (s *stubTaskStream) CreateTask(ctx context.Context, req contracts.TaskCreateRequest) (*contracts.TaskResponse, error) {
	return nil, nil
}

func (s *stubTaskStream) GetTask(ctx context.Context, id string) (*contracts.TaskResponse, error) {
	return nil, nil
}

func (s *stubTaskStream) GetTaskLogs(ctx context.Context, id string) (*contracts.TaskLogsResponse, error) {
	return nil, nil
}

func (s *stubTaskStream) ListTasks(ctx context.Context, req contracts.TaskListRequest) (*contracts.TaskListResponse, error) {
	return nil, nil
}

func (s *stubTaskStream) CancelTask(ctx context.Context, id string) (*contracts.TaskResponse, error) {
	return nil, nil
}

func (s *stubTaskStream) Subscribe(taskID string) (<-chan entities.TaskEvent, func(), error) {
	return s.ch, func() {}, nil
}

// closeNotifyRecorder 补齐 httptest.ResponseRecorder 缺失的 http.CloseNotifier,
// gin 的 Context.Stream 会对底层 writer 做该断言
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func serveStream(t *testing.T, svc contracts.TaskService) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/tasks/:id/events", NewEventHandler(svc).Stream)

	w := &closeNotifyRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	req := httptest.NewRequest(http.MethodGet, "/api/tasks/t1/events", nil)
	router.ServeHTTP(w, req)
	return w.Body.String()
}

func TestStreamEmitsErrorFrameOnAbnormalClose(t *testing.T) {
	ch := make(chan entities.TaskEvent, 2)
	ch <- entities.TaskEvent{
		TaskID:    "t1",
		Type:      entities.EventSnapshot,
		Timestamp: time.Now().UTC(),
		Status:    entities.TaskStatusRunning,
	}
	close(ch) // 未经终止事件即关闭,模拟慢订阅者被分发器摘除

	body := serveStream(t, &stubTaskStream{ch: ch})
	if !strings.Contains(body, "event:snapshot") {
		t.Errorf("missing snapshot frame: %q", body)
	}
	if !strings.Contains(body, "event:error") {
		t.Errorf("missing error frame: %q", body)
	}
}

func TestStreamClosesCleanAfterTerminalEvent(t *testing.T) {
	ch := make(chan entities.TaskEvent, 2)
	ch <- entities.TaskEvent{
		TaskID:    "t1",
		Type:      entities.EventSnapshot,
		Timestamp: time.Now().UTC(),
		Status:    entities.TaskStatusRunning,
	}
	ch <- entities.TaskEvent{
		TaskID:    "t1",
		Type:      entities.EventTaskCompleted,
		Timestamp: time.Now().UTC(),
		Status:    entities.TaskStatusSuccess,
	}

	body := serveStream(t, &stubTaskStream{ch: ch})
	if !strings.Contains(body, "event:task_completed") {
		t.Errorf("missing terminal frame: %q", body)
	}
	if strings.Contains(body, "event:error") {
		t.Errorf("unexpected error frame: %q", body)
	}
}
