package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/evangelionleo/labelU/model"
	"github.com/evangelionleo/labelU/utils"
	"go.uber.org/zap"
)

// AnnotateService 文本检测 + 框提示分割的自动标注
type AnnotateService struct {
	detector  Detector
	fallback  Detector
	segmenter Segmenter
	cache     ResultCache
}

// NewAnnotateService cache 可以为 nil，表示不缓存
func NewAnnotateService(detector Detector, segmenter Segmenter, cache ResultCache) *AnnotateService {
	return &AnnotateService{
		detector:  detector,
		fallback:  NewSyntheticDetector(),
		segmenter: segmenter,
		cache:     cache,
	}
}

// DetectorName 启动时选定的检测器名称
func (s *AnnotateService) DetectorName() string {
	return s.detector.Name()
}

// DetectorAvailable 是否有真实的检测模型可用
func (s *AnnotateService) DetectorAvailable() bool {
	if _, ok := s.detector.(*SyntheticDetector); ok {
		return false
	}
	return s.detector.Ready()
}

// Annotate 对一张图像执行自动标注，结果按 图像MD5+提示词+阈值 缓存
func (s *AnnotateService) Annotate(ctx context.Context, data []byte, prompt string, th model.Thresholds) (*model.AnnotationResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: text prompt is empty", ErrInvalidInput)
	}
	if err := validateThresholds(th); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no image data", ErrInvalidInput)
	}

	md5 := utils.BytesMD5(data)
	cacheKey := utils.CacheKey(md5, prompt,
		strconv.FormatFloat(th.BoxThreshold, 'f', -1, 64),
		strconv.FormatFloat(th.TextThreshold, 'f', -1, 64))

	if s.cache != nil {
		cached, err := s.cache.GetAnnotation(ctx, cacheKey)
		if err != nil {
			utils.Logger.Warn("failed to get cache", zap.Error(err))
		}
		if cached != nil {
			utils.Logger.Info("cache hit", zap.String("md5", md5), zap.String("prompt", prompt))
			cached.Cached = true
			return cached, nil
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}

	startTime := time.Now()
	result, degraded, err := s.annotate(ctx, img, prompt, th)
	if err != nil {
		return nil, err
	}
	result.MD5 = md5

	utils.Logger.Info("image annotated",
		zap.String("md5", md5),
		zap.String("prompt", prompt),
		zap.Int("objects", len(result.Objects)),
		zap.Bool("degraded", degraded),
		zap.Duration("duration", time.Since(startTime)))

	// 模拟结果不写缓存，模型恢复后同样的请求要重新计算
	if s.cache != nil && !degraded {
		if err := s.cache.SetAnnotation(ctx, cacheKey, result); err != nil {
			utils.Logger.Warn("failed to set cache", zap.Error(err))
		}
	}

	return result, nil
}

// annotate 第二个返回值表示结果中用到了模拟检测或模拟分割
func (s *AnnotateService) annotate(ctx context.Context, img image.Image, prompt string, th model.Thresholds) (*model.AnnotationResult, bool, error) {
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	result := &model.AnnotationResult{
		Success:    true,
		Objects:    []model.AnnotatedObject{},
		ImageInfo:  model.ImageInfo{Width: width, Height: height},
		TextPrompt: prompt,
		Thresholds: &th,
	}

	_, degraded := s.detector.(*SyntheticDetector)
	detections, err := s.detector.Detect(ctx, img, prompt, th)
	if err != nil {
		degraded = true
		utils.Logger.Warn("detection failed, using fallback",
			zap.String("detector", s.detector.Name()),
			zap.Error(err))
		detections, err = s.fallback.Detect(ctx, img, prompt, th)
		if err != nil {
			return nil, false, fmt.Errorf("%w: detection failed: %v", ErrInternal, err)
		}
	}

	if len(detections) == 0 {
		result.Message = "未检测到匹配的对象"
		return result, degraded, nil
	}

	boxes := make([]model.Box, len(detections))
	for i, det := range detections {
		boxes[i] = det.Box
	}

	prediction, err := s.segmenter.Segment(ctx, img, Prompt{Boxes: boxes})
	if err != nil {
		return nil, false, fmt.Errorf("%w: segmentation failed: %v", ErrInternal, err)
	}
	degraded = degraded || prediction.Fallback
	if len(prediction.Candidates) != len(detections) {
		return nil, false, fmt.Errorf("%w: got %d masks for %d detections",
			ErrInternal, len(prediction.Candidates), len(detections))
	}

	for i, det := range detections {
		candidate := prediction.Candidates[i]
		result.Objects = append(result.Objects, model.AnnotatedObject{
			ObjectID:          i + 1,
			Label:             det.Label,
			BBox:              det.Box,
			DetectionScore:    det.Score,
			SegmentationScore: candidate.Score,
			Mask:              EncodeMask(candidate.Mask),
		})
	}
	result.Message = fmt.Sprintf("成功检测并分割了 %d 个对象", len(result.Objects))

	return result, degraded, nil
}

func validateThresholds(th model.Thresholds) error {
	if !isFinite(th.BoxThreshold) || !isFinite(th.TextThreshold) {
		return fmt.Errorf("%w: thresholds must be finite numbers", ErrInvalidInput)
	}
	if th.BoxThreshold < 0 || th.BoxThreshold > 1 {
		return fmt.Errorf("%w: box_threshold must be in [0, 1], got %g", ErrInvalidInput, th.BoxThreshold)
	}
	if th.TextThreshold < 0 || th.TextThreshold > 1 {
		return fmt.Errorf("%w: text_threshold must be in [0, 1], got %g", ErrInvalidInput, th.TextThreshold)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
