package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/userfetch/userfetch/internal/api/handlers"
	"github.com/userfetch/userfetch/internal/api/middleware"
	"github.com/userfetch/userfetch/internal/application/contracts"
)

// Services 路由依赖的业务服务
type Services struct {
	Auth     contracts.AuthService
	Settings contracts.SettingsService
	Tasks    contracts.TaskService
	Schedule contracts.ScheduleService
}

// Setup 构建路由
func Setup(router *gin.Engine, services Services) {
	router.Use(middleware.Recover())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS())
	router.Use(middleware.ErrorHandler())

	authHandler := handlers.NewAuthHandler(services.Auth)
	settingsHandler := handlers.NewSettingsHandler(services.Settings)
	taskHandler := handlers.NewTaskHandler(services.Tasks)
	scheduleHandler := handlers.NewScheduleHandler(services.Schedule)
	eventHandler := handlers.NewEventHandler(services.Tasks)

	api := router.Group("/api")
	{
		api.GET("/health", handleHealth)

		// 鉴权接口无需令牌
		auth := api.Group("/auth")
		{
			auth.GET("/status", authHandler.Status)
			auth.POST("/setup", authHandler.Setup)
			auth.POST("/login", authHandler.Login)
		}

		protected := api.Group("", middleware.RequireAuth(services.Auth, false))
		{
			protected.POST("/auth/password", authHandler.ChangePassword)

			protected.GET("/settings", settingsHandler.Get)
			protected.PUT("/settings", settingsHandler.Update)

			tasks := protected.Group("/tasks")
			{
				tasks.POST("", taskHandler.Create)
				tasks.GET("", taskHandler.List)
				tasks.GET("/:id", taskHandler.Get)
				tasks.GET("/:id/logs", taskHandler.Logs)
				tasks.POST("/:id/cancel", taskHandler.Cancel)
			}

			schedules := protected.Group("/schedules")
			{
				schedules.POST("", scheduleHandler.Create)
				schedules.GET("", scheduleHandler.List)
				schedules.GET("/:id", scheduleHandler.Get)
				schedules.PUT("/:id", scheduleHandler.Update)
				schedules.DELETE("/:id", scheduleHandler.Delete)
				schedules.POST("/:id/toggle", scheduleHandler.Toggle)
				schedules.POST("/:id/run-now", scheduleHandler.RunNow)
			}
		}

		// EventSource无法设置请求头,事件流允许查询参数令牌
		api.GET("/tasks/:id/events",
			middleware.RequireAuth(services.Auth, true), eventHandler.Stream)
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// handleHealth 健康检查
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
