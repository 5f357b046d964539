package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mailtriage/internal/api"
	"mailtriage/pkg/rbac"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	triageHandler *api.TriageHandler,
	queryHandler *api.QueryHandler,
	jwtSecret string,
) *Router {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Protected
	protected := r.Group("/api")
	protected.Use(api.TraceMiddleware(), api.AuthMiddleware(jwtSecret))
	{
		protected.POST("/mails/latest", api.RequirePermission(rbac.PermissionRunTriage), triageHandler.RunLatest)
		protected.GET("/inquiries", api.RequirePermission(rbac.PermissionReadInquiries), queryHandler.GetInquiries)
		protected.GET("/messages/other", api.RequirePermission(rbac.PermissionReadMessages), queryHandler.GetOtherMessages)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
