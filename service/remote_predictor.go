package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
	"github.com/go-resty/resty/v2"
)

// RemotePredictor 通过 HTTP 调用外部的 SAM 推理服务
type RemotePredictor struct {
	client    *resty.Client
	multimask bool
	ready     atomic.Bool
}

type remotePredictRequest struct {
	Image           string       `json:"image"` // base64 PNG
	PointCoords     [][2]float64 `json:"point_coords,omitempty"`
	PointLabels     []int        `json:"point_labels,omitempty"`
	Boxes           []model.Box  `json:"boxes,omitempty"`
	MultimaskOutput bool         `json:"multimask_output"`
}

type remotePredictResponse struct {
	Masks  []model.EncodedMask `json:"masks"`
	Scores []float64           `json:"scores"`
	Error  string              `json:"error,omitempty"`
}

func NewRemotePredictor(cfg *config.PredictorConfig) *RemotePredictor {
	return &RemotePredictor{
		client:    newModelClient(cfg.URL, cfg.Timeout),
		multimask: cfg.Multimask,
	}
}

func newModelClient(url string, timeout time.Duration) *resty.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(url, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return client
}

func (p *RemotePredictor) Name() string { return "remote-sam" }

func (p *RemotePredictor) Ready() bool { return p.ready.Load() }

// CheckHealth 检查推理服务是否可用，并更新 Ready 状态
func (p *RemotePredictor) CheckHealth(ctx context.Context) error {
	err := checkModelHealth(ctx, p.client)
	p.ready.Store(err == nil)
	return err
}

func (p *RemotePredictor) Predict(ctx context.Context, img image.Image, prompt Prompt) ([]Candidate, error) {
	if err := prompt.validate(); err != nil {
		return nil, err
	}

	encoded, err := encodeImageBase64(img)
	if err != nil {
		return nil, err
	}

	req := remotePredictRequest{
		Image:           encoded,
		Boxes:           prompt.Boxes,
		MultimaskOutput: p.multimask || prompt.Multimask,
	}
	for _, pt := range prompt.Points {
		req.PointCoords = append(req.PointCoords, pt.XY())
		req.PointLabels = append(req.PointLabels, pt.Label)
	}
	if len(prompt.Boxes) > 0 {
		req.MultimaskOutput = false
	}

	var out remotePredictResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/predict")
	if err != nil {
		p.ready.Store(false)
		return nil, fmt.Errorf("%w: send request: %v", ErrModelUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: inference failed with status %d: %s",
			ErrModelUnavailable, resp.StatusCode(), out.Error)
	}
	p.ready.Store(true)

	candidates := make([]Candidate, 0, len(out.Masks))
	for i, enc := range out.Masks {
		mask, err := DecodeMask(enc)
		if err != nil {
			return nil, fmt.Errorf("%w: mask %d: %v", ErrModelUnavailable, i, err)
		}
		score := 0.0
		if i < len(out.Scores) {
			score = out.Scores[i]
		}
		candidates = append(candidates, Candidate{Mask: mask, Score: score})
	}

	return candidates, nil
}

func checkModelHealth(ctx context.Context, client *resty.Client) error {
	resp, err := client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: model service unhealthy: %d", ErrModelUnavailable, resp.StatusCode())
	}
	return nil
}

// encodeImageBase64 将图像编码为 PNG 后做 base64
func encodeImageBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("%w: encode image: %v", ErrInternal, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
