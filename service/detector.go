package service

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync/atomic"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
	"github.com/evangelionleo/labelU/utils"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Detector 文本驱动的目标检测模型
type Detector interface {
	Name() string
	Ready() bool
	Detect(ctx context.Context, img image.Image, prompt string, th model.Thresholds) ([]model.Detection, error)
}

// SyntheticDetector 模型不可用时返回两个固定位置的检测框
type SyntheticDetector struct{}

func NewSyntheticDetector() *SyntheticDetector {
	return &SyntheticDetector{}
}

func (d *SyntheticDetector) Name() string { return "synthetic" }

func (d *SyntheticDetector) Ready() bool { return true }

func (d *SyntheticDetector) Detect(_ context.Context, img image.Image, prompt string, _ model.Thresholds) ([]model.Detection, error) {
	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())

	return []model.Detection{
		{
			Box:   model.Box{w * 0.1, h * 0.1, w * 0.4, h * 0.4},
			Score: 0.8,
			Label: fmt.Sprintf("detected_%s_1", prompt),
		},
		{
			Box:   model.Box{w * 0.6, h * 0.6, w * 0.9, h * 0.9},
			Score: 0.7,
			Label: fmt.Sprintf("detected_%s_2", prompt),
		},
	}, nil
}

// RemoteDetector 通过 HTTP 调用外部的 Grounding DINO 推理服务
type RemoteDetector struct {
	client *resty.Client
	ready  atomic.Bool
}

type remoteDetectRequest struct {
	Image         string  `json:"image"` // base64 PNG
	TextPrompt    string  `json:"text_prompt"`
	BoxThreshold  float64 `json:"box_threshold"`
	TextThreshold float64 `json:"text_threshold"`
}

type remoteDetectResponse struct {
	Boxes  []model.Box `json:"boxes"`
	Scores []float64   `json:"scores"`
	Labels []string    `json:"labels"`
	Error  string      `json:"error,omitempty"`
}

func NewRemoteDetector(cfg *config.DetectorConfig) *RemoteDetector {
	return &RemoteDetector{
		client: newModelClient(cfg.URL, cfg.Timeout),
	}
}

func (d *RemoteDetector) Name() string { return "remote-grounding-dino" }

func (d *RemoteDetector) Ready() bool { return d.ready.Load() }

func (d *RemoteDetector) CheckHealth(ctx context.Context) error {
	err := checkModelHealth(ctx, d.client)
	d.ready.Store(err == nil)
	return err
}

func (d *RemoteDetector) Detect(ctx context.Context, img image.Image, prompt string, th model.Thresholds) ([]model.Detection, error) {
	encoded, err := encodeImageBase64(img)
	if err != nil {
		return nil, err
	}

	var out remoteDetectResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(remoteDetectRequest{
			Image:         encoded,
			TextPrompt:    prompt,
			BoxThreshold:  th.BoxThreshold,
			TextThreshold: th.TextThreshold,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/detect")
	if err != nil {
		d.ready.Store(false)
		return nil, fmt.Errorf("%w: send request: %v", ErrModelUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: detection failed with status %d: %s",
			ErrModelUnavailable, resp.StatusCode(), out.Error)
	}
	d.ready.Store(true)

	detections := make([]model.Detection, 0, len(out.Boxes))
	for i, box := range out.Boxes {
		det := model.Detection{Box: box, Label: fmt.Sprintf("object_%d", i)}
		if i < len(out.Scores) {
			det.Score = out.Scores[i]
		}
		if i < len(out.Labels) && strings.TrimSpace(out.Labels[i]) != "" {
			det.Label = out.Labels[i]
		}
		detections = append(detections, det)
	}
	return detections, nil
}

// NewDetector 配置了 URL 时使用远程检测模型（不可用时仍保留，调用失败会回退），
// 否则依次尝试显著性检测和模拟检测
func NewDetector(ctx context.Context, cfg *config.DetectorConfig) Detector {
	if cfg.URL == "" {
		if cfg.Saliency {
			saliency, err := NewSaliencyDetector()
			if err == nil {
				utils.Logger.Info("using saliency detector")
				return saliency
			}
			utils.Logger.Warn("saliency detector not available", zap.Error(err))
		}
		utils.Logger.Warn("no detection model configured, using synthetic detections")
		return NewSyntheticDetector()
	}

	remote := NewRemoteDetector(cfg)
	if err := remote.CheckHealth(ctx); err != nil {
		utils.Logger.Warn("detection model server not available",
			zap.String("url", cfg.URL),
			zap.Error(err))
	} else {
		utils.Logger.Info("detection model server ready", zap.String("url", cfg.URL))
	}
	return remote
}
