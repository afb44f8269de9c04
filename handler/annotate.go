package handler

import (
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
	"github.com/evangelionleo/labelU/service"
	"github.com/evangelionleo/labelU/utils"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// maxBatchFiles 批量标注单次请求的最大文件数
const maxBatchFiles = 20

type AnnotateHandler struct {
	cfg       *config.Config
	annotator *service.AnnotateService
	uploads   *UploadHandler
}

func NewAnnotateHandler(cfg *config.Config, annotator *service.AnnotateService) *AnnotateHandler {
	return &AnnotateHandler{
		cfg:       cfg,
		annotator: annotator,
		uploads:   NewUploadHandler(cfg),
	}
}

// AutoAnnotate 单图自动标注：multipart 字段 image、text_prompt，可选 box_threshold、text_threshold
func (h *AnnotateHandler) AutoAnnotate(c *gin.Context) {
	limitBody(c, h.cfg.Upload.MaxSize)

	file, err := c.FormFile("image")
	if err != nil {
		if isTooLarge(err) {
			abortWithMessage(c, http.StatusRequestEntityTooLarge, h.uploads.tooLargeMessage())
			return
		}
		abortWithMessage(c, http.StatusBadRequest, "没有图像文件")
		return
	}

	prompt, th, ok := h.parseForm(c)
	if !ok {
		return
	}

	if _, status, msg := h.uploads.checkFile(file); status != http.StatusOK {
		abortWithMessage(c, status, msg)
		return
	}

	data, err := readFile(file)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.annotator.Annotate(c.Request.Context(), data, prompt, th)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BatchAnnotate 批量自动标注，单个文件失败不影响其它文件
func (h *AnnotateHandler) BatchAnnotate(c *gin.Context) {
	limitBody(c, h.cfg.Upload.MaxSize*maxBatchFiles)

	form, err := c.MultipartForm()
	if err != nil {
		if isTooLarge(err) {
			abortWithMessage(c, http.StatusRequestEntityTooLarge, "请求过大")
			return
		}
		abortWithMessage(c, http.StatusBadRequest, "没有图像文件")
		return
	}

	files := form.File["images"]
	if len(files) == 0 {
		abortWithMessage(c, http.StatusBadRequest, "没有选择文件")
		return
	}
	if len(files) > maxBatchFiles {
		abortWithMessage(c, http.StatusBadRequest, "文件数量过多")
		return
	}

	prompt, th, ok := h.parseForm(c)
	if !ok {
		return
	}

	results := make([]*model.AnnotationResult, 0, len(files))
	for _, file := range files {
		results = append(results, h.annotateOne(c, file, prompt, th))
	}

	c.JSON(http.StatusOK, model.BatchAnnotationResponse{
		Success: true,
		Message: "批量处理完成，共处理 " + cast.ToString(len(results)) + " 个文件",
		Results: results,
	})
}

func (h *AnnotateHandler) annotateOne(c *gin.Context, file *multipart.FileHeader, prompt string, th model.Thresholds) *model.AnnotationResult {
	failed := func(msg string) *model.AnnotationResult {
		return &model.AnnotationResult{
			Success:  false,
			Filename: file.Filename,
			Objects:  []model.AnnotatedObject{},
			Error:    msg,
		}
	}

	if _, status, msg := h.uploads.checkFile(file); status != http.StatusOK {
		return failed(msg)
	}

	data, err := readFile(file)
	if err != nil {
		return failed(err.Error())
	}

	result, err := h.annotator.Annotate(c.Request.Context(), data, prompt, th)
	if err != nil {
		utils.Logger.Warn("batch item failed",
			zap.String("filename", file.Filename),
			zap.Error(err))
		_, msg := statusFor(err)
		return failed(msg + ": " + err.Error())
	}
	result.Filename = file.Filename
	return result
}

// parseForm 读取提示词和阈值，失败时已写出 400 响应
func (h *AnnotateHandler) parseForm(c *gin.Context) (string, model.Thresholds, bool) {
	th := model.Thresholds{
		BoxThreshold:  h.cfg.Detector.BoxThreshold,
		TextThreshold: h.cfg.Detector.TextThreshold,
	}

	prompt, ok := c.GetPostForm("text_prompt")
	if !ok {
		abortWithMessage(c, http.StatusBadRequest, "没有文本提示")
		return "", th, false
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		abortWithMessage(c, http.StatusBadRequest, "文本提示不能为空")
		return "", th, false
	}

	for field, dst := range map[string]*float64{
		"box_threshold":  &th.BoxThreshold,
		"text_threshold": &th.TextThreshold,
	} {
		raw, ok := c.GetPostForm(field)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := cast.ToFloat64E(strings.TrimSpace(raw))
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			abortWithMessage(c, http.StatusBadRequest, "无效的 "+field)
			return "", th, false
		}
		*dst = v
	}

	return prompt, th, true
}

func readFile(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
