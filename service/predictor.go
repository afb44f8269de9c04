package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
	"github.com/evangelionleo/labelU/utils"
	"go.uber.org/zap"
)

// Prompt 分割提示。点提示时各候选是同一对象的不同假设，
// 框提示时每个框对应一个候选，顺序与 Boxes 一致。
type Prompt struct {
	Points    []model.Point
	Boxes     []model.Box
	Multimask bool
}

func (p Prompt) validate() error {
	if len(p.Points) == 0 && len(p.Boxes) == 0 {
		return fmt.Errorf("%w: prompt has neither points nor boxes", ErrInvalidInput)
	}
	return nil
}

// Candidate 模型给出的一个候选掩码
type Candidate struct {
	Mask  *model.Mask
	Score float64
}

// Predictor 可提示的分割模型
type Predictor interface {
	Name() string
	// Ready 模型是否可用
	Ready() bool
	Predict(ctx context.Context, img image.Image, prompt Prompt) ([]Candidate, error)
}

// SelectBest 返回得分最高的候选，得分相同时取靠前的
func SelectBest(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, fmt.Errorf("%w: no candidate masks", ErrModelUnavailable)
	}
	best := 0
	for i, c := range candidates {
		if c.Score > candidates[best].Score {
			best = i
		}
	}
	return candidates[best], nil
}

// SyntheticPredictor 模型不可用时的确定性替代：
// 点提示返回以第一个点为圆心、半径 min(h,w)/8 的实心圆，框提示返回框内矩形
type SyntheticPredictor struct{}

func NewSyntheticPredictor() *SyntheticPredictor {
	return &SyntheticPredictor{}
}

func (p *SyntheticPredictor) Name() string { return "synthetic" }

func (p *SyntheticPredictor) Ready() bool { return true }

func (p *SyntheticPredictor) Predict(_ context.Context, img image.Image, prompt Prompt) ([]Candidate, error) {
	if err := prompt.validate(); err != nil {
		return nil, err
	}

	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	if len(prompt.Boxes) > 0 {
		candidates := make([]Candidate, 0, len(prompt.Boxes))
		for _, box := range prompt.Boxes {
			candidates = append(candidates, Candidate{
				Mask:  RectMask(height, width, box),
				Score: 0.5,
			})
		}
		return candidates, nil
	}

	first := prompt.Points[0]
	radius := min(width, height) / 8
	return []Candidate{{
		Mask:  DiskMask(height, width, first.X, first.Y, radius),
		Score: 1.0,
	}}, nil
}

// Prediction 一次分割的结果以及实际给出结果的预测器
type Prediction struct {
	Candidates []Candidate
	Source     string
	Duration   time.Duration
	// Fallback 结果来自模拟预测器
	Fallback bool
}

// Segmenter 会话和自动标注服务依赖的分割能力
type Segmenter interface {
	Segment(ctx context.Context, img image.Image, prompt Prompt) (*Prediction, error)
}

// FallbackPredictor 先尝试主模型，模型不可用或失败时使用回退预测器。
// primary 为 nil 表示启动时没有可用模型。
type FallbackPredictor struct {
	primary  Predictor
	fallback Predictor
	gate     *InferenceGate
}

func NewFallbackPredictor(primary, fallback Predictor, gate *InferenceGate) *FallbackPredictor {
	return &FallbackPredictor{
		primary:  primary,
		fallback: fallback,
		gate:     gate,
	}
}

// Name 启动时选定的预测器名称
func (p *FallbackPredictor) Name() string {
	if p.primary != nil {
		return p.primary.Name()
	}
	return p.fallback.Name()
}

// HasModel 启动时是否选定了真实的分割模型
func (p *FallbackPredictor) HasModel() bool {
	return p.primary != nil
}

// ModelAvailable 主模型是否存在且可用
func (p *FallbackPredictor) ModelAvailable() bool {
	return p.primary != nil && p.primary.Ready()
}

func (p *FallbackPredictor) Segment(ctx context.Context, img image.Image, prompt Prompt) (*Prediction, error) {
	if err := prompt.validate(); err != nil {
		return nil, err
	}

	if p.primary != nil {
		start := time.Now()
		candidates, err := p.predictPrimary(ctx, img, prompt)
		if err == nil {
			return &Prediction{
				Candidates: candidates,
				Source:     p.primary.Name(),
				Duration:   time.Since(start),
			}, nil
		}
		utils.Logger.Warn("model prediction failed, using fallback",
			zap.String("predictor", p.primary.Name()),
			zap.String("fallback", p.fallback.Name()),
			zap.Error(err))
	}

	start := time.Now()
	candidates, err := p.fallback.Predict(ctx, img, prompt)
	if err != nil {
		return nil, err
	}
	return &Prediction{
		Candidates: candidates,
		Source:     p.fallback.Name(),
		Duration:   time.Since(start),
		Fallback:   true,
	}, nil
}

func (p *FallbackPredictor) predictPrimary(ctx context.Context, img image.Image, prompt Prompt) ([]Candidate, error) {
	if p.gate != nil {
		release, err := p.gate.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	candidates, err := p.primary.Predict(ctx, img, prompt)
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if err := checkCandidates(candidates, img, prompt); err != nil {
		return nil, err
	}
	return candidates, nil
}

func checkCandidates(candidates []Candidate, img image.Image, prompt Prompt) error {
	if len(candidates) == 0 {
		return fmt.Errorf("%w: model returned no masks", ErrModelUnavailable)
	}
	if len(prompt.Boxes) > 0 && len(candidates) != len(prompt.Boxes) {
		return fmt.Errorf("%w: model returned %d masks for %d boxes",
			ErrModelUnavailable, len(candidates), len(prompt.Boxes))
	}
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	for i, c := range candidates {
		if c.Mask == nil || c.Mask.Width != width || c.Mask.Height != height {
			return fmt.Errorf("%w: mask %d does not match image size %dx%d",
				ErrModelUnavailable, i, height, width)
		}
	}
	return nil
}

// NewPredictor 按配置在启动时选择分割策略：远程模型 > GrabCut > 仅模拟
func NewPredictor(ctx context.Context, cfg *config.Config, gate *InferenceGate) *FallbackPredictor {
	synthetic := NewSyntheticPredictor()

	if cfg.Predictor.URL != "" {
		remote := NewRemotePredictor(&cfg.Predictor)
		if err := remote.CheckHealth(ctx); err != nil {
			utils.Logger.Warn("segmentation model server not available, synthetic masks will be used until it recovers",
				zap.String("url", cfg.Predictor.URL),
				zap.Error(err))
		} else {
			utils.Logger.Info("segmentation model server ready", zap.String("url", cfg.Predictor.URL))
		}
		return NewFallbackPredictor(remote, synthetic, gate)
	}

	if cfg.GrabCut.Enabled {
		grabCut, err := NewGrabCutPredictor(&cfg.GrabCut)
		if err == nil {
			utils.Logger.Info("using grabcut predictor", zap.Int("iterations", cfg.GrabCut.Iterations))
			return NewFallbackPredictor(grabCut, synthetic, gate)
		}
		utils.Logger.Warn("grabcut predictor not available", zap.Error(err))
	}

	utils.Logger.Warn("no segmentation model available, using synthetic masks")
	return NewFallbackPredictor(nil, synthetic, gate)
}
