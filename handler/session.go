package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
	"github.com/evangelionleo/labelU/service"
	"github.com/evangelionleo/labelU/utils"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	cfg      *config.Config
	sessions *service.SessionManager
}

func NewSessionHandler(cfg *config.Config, sessions *service.SessionManager) *SessionHandler {
	return &SessionHandler{
		cfg:      cfg,
		sessions: sessions,
	}
}

// StartSession 在一张已存在的图像上开始分割会话
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req model.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "无效的请求体: "+err.Error())
		return
	}
	if req.ImagePath == "" {
		abortWithMessage(c, http.StatusBadRequest, "缺少图像路径")
		return
	}

	imagePath, ok := h.resolveImagePath(req.ImagePath)
	if !ok {
		abortWithMessage(c, http.StatusBadRequest, "图像路径不在上传目录中")
		return
	}

	session, err := h.sessions.Start(c.Request.Context(), imagePath)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.StartSessionResponse{SessionID: session.ID()})
}

// AddPoint 添加一个点击并返回最新的分割结果
func (h *SessionHandler) AddPoint(c *gin.Context) {
	var req model.AddPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "无效的请求体: "+err.Error())
		return
	}
	if !utils.IsID(req.SessionID) {
		abortWithMessage(c, http.StatusBadRequest, "无效的会话ID")
		return
	}
	if len(req.Point) != 2 {
		abortWithMessage(c, http.StatusBadRequest, "无效的点坐标")
		return
	}

	label := model.LabelForeground
	if req.Label != nil {
		label = *req.Label
	}

	result, err := h.sessions.AddPoint(c.Request.Context(), req.SessionID, req.Point[0], req.Point[1], label, req.ClearPrevious)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.AddPointResponse{
		SessionID:   result.SessionID,
		Point:       result.Point.XY(),
		Label:       result.Point.Label,
		Mask:        result.Encoded,
		BBox:        result.BBox,
		Score:       result.Score,
		Source:      result.Source,
		TotalPoints: result.TotalPoints,
	})
}

// ClearPoints 清除会话中的所有点
func (h *SessionHandler) ClearPoints(c *gin.Context) {
	var req model.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "无效的请求体: "+err.Error())
		return
	}

	if err := h.sessions.Clear(req.SessionID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Success: true, Message: "已清除所有点"})
}

// CloseSession 关闭会话，重复关闭不报错
func (h *SessionHandler) CloseSession(c *gin.Context) {
	var req model.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithMessage(c, http.StatusBadRequest, "无效的请求体: "+err.Error())
		return
	}

	h.sessions.Close(req.SessionID)
	c.JSON(http.StatusOK, model.SuccessResponse{Success: true})
}

// ListSessions 列出所有活跃会话（调试用）
func (h *SessionHandler) ListSessions(c *gin.Context) {
	ids := h.sessions.List()
	c.JSON(http.StatusOK, model.SessionListResponse{
		Sessions: ids,
		Count:    len(ids),
	})
}

// resolveImagePath 只给了文件名时到上传目录中查找，其他路径必须位于上传目录内
func (h *SessionHandler) resolveImagePath(p string) (string, bool) {
	root, err := filepath.Abs(h.cfg.Upload.UploadDir)
	if err != nil {
		return "", false
	}

	if filepath.Base(p) == p {
		p = filepath.Join(root, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}
