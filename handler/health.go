package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/evangelionleo/labelU/model"
	"github.com/evangelionleo/labelU/service"
	"github.com/gin-gonic/gin"
)

const redisPingTimeout = 500 * time.Millisecond

// BuildInfo 编译时注入的版本信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

type HealthHandler struct {
	build     BuildInfo
	predictor *service.FallbackPredictor
	annotator *service.AnnotateService
	cache     service.ResultCache
}

// NewHealthHandler cache 为 nil 表示未启用 Redis
func NewHealthHandler(build BuildInfo, predictor *service.FallbackPredictor, annotator *service.AnnotateService, cache service.ResultCache) *HealthHandler {
	return &HealthHandler{
		build:     build,
		predictor: predictor,
		annotator: annotator,
		cache:     cache,
	}
}

// Health 报告各依赖和模型的可用状态，模型不可用不算失败
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{
		Status:         "healthy",
		Version:        h.build.Version,
		Predictor:      h.predictor.Name(),
		PredictorReady: h.predictor.HasModel(),
		ModelAvailable: h.predictor.ModelAvailable(),
		DetectorReady:  h.annotator.DetectorAvailable(),
		GoCVAvailable:  service.GoCVAvailable,
		RedisAvailable: h.redisAvailable(c.Request.Context()),
	})
}

func (h *HealthHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, h.build)
}

func (h *HealthHandler) redisAvailable(ctx context.Context) bool {
	if h.cache == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	return h.cache.Ping(ctx) == nil
}
