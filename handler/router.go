package handler

import (
	"strings"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Upload   *UploadHandler
	Session  *SessionHandler
	Annotate *AnnotateHandler
	Health   *HealthHandler
}

// NewRouter 注册所有路由，业务接口挂在 server.base_path 下
func NewRouter(cfg *config.Config, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	basePath := strings.TrimRight(cfg.Server.BasePath, "/")

	// 存活探针，base_path 为根路径时由下面的分组注册
	if basePath != "" {
		r.GET("/health", h.Health.Health)
		r.GET("/version", h.Health.Version)
	}

	api := r.Group("/" + strings.TrimLeft(basePath, "/"))
	{
		api.POST("/upload", h.Upload.Upload)
		api.GET("/image/:filename", h.Upload.ServeImage)

		api.POST("/start_session", h.Session.StartSession)
		api.POST("/add_point", h.Session.AddPoint)
		api.POST("/clear_points", h.Session.ClearPoints)
		api.POST("/close_session", h.Session.CloseSession)
		api.GET("/sessions", h.Session.ListSessions)

		api.POST("/auto_annotate", h.Annotate.AutoAnnotate)
		api.POST("/batch_annotate", h.Annotate.BatchAnnotate)

		api.GET("/health", h.Health.Health)
		api.GET("/version", h.Health.Version)
	}

	return r
}
