//go:build !gocv

package service

import (
	"context"
	"fmt"
	"image"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
)

// GoCVAvailable 编译时是否带有 OpenCV 支持
const GoCVAvailable = false

// GrabCutPredictor 未使用 -tags gocv 编译时不可用
type GrabCutPredictor struct{}

func NewGrabCutPredictor(_ *config.GrabCutConfig) (*GrabCutPredictor, error) {
	return nil, fmt.Errorf("%w: built without gocv, rebuild with -tags gocv", ErrModelUnavailable)
}

func (p *GrabCutPredictor) Name() string { return "grabcut" }

func (p *GrabCutPredictor) Ready() bool { return false }

func (p *GrabCutPredictor) Predict(context.Context, image.Image, Prompt) ([]Candidate, error) {
	return nil, ErrModelUnavailable
}

// SaliencyDetector 未使用 -tags gocv 编译时不可用
type SaliencyDetector struct{}

func NewSaliencyDetector() (*SaliencyDetector, error) {
	return nil, fmt.Errorf("%w: built without gocv, rebuild with -tags gocv", ErrModelUnavailable)
}

func (sd *SaliencyDetector) Name() string { return "saliency" }

func (sd *SaliencyDetector) Ready() bool { return false }

func (sd *SaliencyDetector) Detect(context.Context, image.Image, string, model.Thresholds) ([]model.Detection, error) {
	return nil, ErrModelUnavailable
}
