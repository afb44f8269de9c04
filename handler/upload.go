package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
	"github.com/evangelionleo/labelU/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead 留给 multipart 边界和其它表单字段的余量
const multipartOverhead = 1 << 20

type UploadHandler struct {
	cfg *config.Config
}

func NewUploadHandler(cfg *config.Config) *UploadHandler {
	return &UploadHandler{cfg: cfg}
}

// Upload 保存上传的图片，返回文件名、存储路径和访问 URL
func (h *UploadHandler) Upload(c *gin.Context) {
	limitBody(c, h.cfg.Upload.MaxSize)

	file, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			abortWithMessage(c, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
			return
		}
		utils.Logger.Warn("failed to get uploaded file", zap.Error(err))
		abortWithMessage(c, http.StatusBadRequest, "没有文件")
		return
	}

	ext, status, msg := h.checkFile(file)
	if status != http.StatusOK {
		abortWithMessage(c, status, msg)
		return
	}

	filename := utils.NewID() + "." + ext
	savePath := filepath.Join(h.cfg.Upload.UploadDir, filename)

	if err := c.SaveUploadedFile(file, savePath); err != nil {
		utils.Logger.Error("failed to save file", zap.Error(err))
		abortWithMessage(c, http.StatusInternalServerError, "保存文件失败: "+err.Error())
		return
	}

	utils.Logger.Info("file uploaded",
		zap.String("filename", filename),
		zap.String("original", file.Filename),
		zap.Int64("size", file.Size))

	c.JSON(http.StatusOK, model.UploadResponse{
		Filename: filename,
		Path:     savePath,
		URL:      imageURL(h.cfg.Server.BasePath, filename),
	})
}

// ServeImage 返回之前上传的文件
func (h *UploadHandler) ServeImage(c *gin.Context) {
	filename := filepath.Base(c.Param("filename"))
	if filename == "." || filename == "/" || filename == ".." {
		abortWithMessage(c, http.StatusNotFound, "图像文件不存在")
		return
	}

	path := filepath.Join(h.cfg.Upload.UploadDir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		abortWithMessage(c, http.StatusNotFound, "图像文件不存在")
		return
	}

	c.File(path)
}

// checkFile 校验文件名、扩展名和大小，通过时返回小写扩展名和 200
func (h *UploadHandler) checkFile(file *multipart.FileHeader) (string, int, string) {
	if file.Filename == "" {
		return "", http.StatusBadRequest, "没有选择文件"
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(file.Filename), "."))
	if !h.isAllowedExt(ext) {
		return "", http.StatusBadRequest, "不支持的文件格式"
	}

	if file.Size > h.cfg.Upload.MaxSize {
		return "", http.StatusRequestEntityTooLarge, h.tooLargeMessage()
	}

	return ext, http.StatusOK, ""
}

func (h *UploadHandler) isAllowedExt(ext string) bool {
	if ext == "" {
		return false
	}
	for _, allowed := range h.cfg.Upload.AllowedExts {
		if strings.EqualFold(ext, strings.TrimPrefix(allowed, ".")) {
			return true
		}
	}
	return false
}

func (h *UploadHandler) tooLargeMessage() string {
	return fmt.Sprintf("文件过大 (最大 %d MB)", h.cfg.Upload.MaxSize/(1024*1024))
}

func imageURL(basePath, filename string) string {
	return strings.TrimRight(basePath, "/") + "/image/" + filename
}

// limitBody 限制请求体大小，超出时 multipart 解析会返回 *http.MaxBytesError
func limitBody(c *gin.Context, maxFileSize int64) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFileSize+multipartOverhead)
}

func isTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
