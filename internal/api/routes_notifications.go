package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/handlers"
)

func registerNotificationRoutes(api *gin.RouterGroup, notifications *handlers.NotificationHandler, realtime *handlers.RealtimeHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", notifications.List)
		group.GET("/unread-count", notifications.UnreadCount)
		group.GET("/stream", realtime.Stream)
		group.POST("/read-all", notifications.MarkAllRead)
		group.POST("/:id/read", notifications.MarkRead)
		group.DELETE("/:id", notifications.Delete)
	}
	api.GET("/realtime/:stream", realtime.Stream)
}
