//go:build gocv

package service

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
	"github.com/evangelionleo/labelU/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// GoCVAvailable 编译时是否带有 OpenCV 支持
const GoCVAvailable = true

// GrabCut 掩码取值
const (
	gcBgd   uint8 = 0
	gcFgd   uint8 = 1
	gcPRBgd uint8 = 2
	gcPRFgd uint8 = 3
)

// GrabCutPredictor 用点击或框初始化 GrabCut，作为本地分割模型
type GrabCutPredictor struct {
	iterations    int
	seedRadius    int
	kernelSize    int
	maskProcessor *MaskProcessor
}

func NewGrabCutPredictor(cfg *config.GrabCutConfig) (*GrabCutPredictor, error) {
	if cfg.Iterations <= 0 {
		return nil, fmt.Errorf("%w: grabcut iterations must be positive", ErrModelUnavailable)
	}
	kernelSize := cfg.KernelSize
	if kernelSize <= 0 {
		kernelSize = 3
	}
	return &GrabCutPredictor{
		iterations:    cfg.Iterations,
		seedRadius:    max(1, cfg.SeedRadius),
		kernelSize:    kernelSize,
		maskProcessor: NewMaskProcessor(),
	}, nil
}

func (p *GrabCutPredictor) Name() string { return "grabcut" }

func (p *GrabCutPredictor) Ready() bool { return true }

func (p *GrabCutPredictor) Predict(ctx context.Context, img image.Image, prompt Prompt) ([]Candidate, error) {
	if err := prompt.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	startTime := time.Now()

	var candidates []Candidate
	if len(prompt.Boxes) > 0 {
		for _, box := range prompt.Boxes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			candidates = append(candidates, p.segmentBox(&mat, box))
		}
	} else {
		candidates = append(candidates, p.segmentPoints(&mat, prompt.Points))
	}

	utils.Logger.Debug("grabcut finished",
		zap.Int("width", mat.Cols()),
		zap.Int("height", mat.Rows()),
		zap.Int("points", len(prompt.Points)),
		zap.Int("boxes", len(prompt.Boxes)),
		zap.Duration("duration", time.Since(startTime)))

	return candidates, nil
}

func (p *GrabCutPredictor) segmentPoints(img *gocv.Mat, points []model.Point) Candidate {
	width, height := img.Cols(), img.Rows()

	// 没有前景点时 GrabCut 无法初始化前景模型
	if !hasForeground(points) {
		return Candidate{Mask: model.NewMask(height, width), Score: 0}
	}

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(gcPRBgd), 0, 0, 0), height, width, gocv.MatTypeCV8U)
	defer mask.Close()

	// 前景点周围先标为可能前景，再把点本身附近标为确定前景/背景
	probableRadius := max(p.seedRadius*4, min(width, height)/8)
	for _, pt := range points {
		if pt.Label == model.LabelForeground {
			fillDisk(&mask, pt, probableRadius, gcPRFgd)
		}
	}
	for _, pt := range points {
		value := gcBgd
		if pt.Label == model.LabelForeground {
			value = gcFgd
		}
		fillDisk(&mask, pt, p.seedRadius, value)
	}

	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	gocv.GrabCut(*img, &mask, image.Rectangle{}, &bgdModel, &fgdModel, p.iterations, gocv.GCInitWithMask)

	var seed image.Point
	for _, pt := range points {
		if pt.Label == model.LabelForeground {
			seed = image.Point{X: int(pt.X), Y: int(pt.Y)}
			break
		}
	}

	return p.finish(&mask, seed)
}

func (p *GrabCutPredictor) segmentBox(img *gocv.Mat, box model.Box) Candidate {
	width, height := img.Cols(), img.Rows()
	rect := image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3])).
		Intersect(image.Rect(0, 0, width, height))
	if rect.Dx() < 2 || rect.Dy() < 2 {
		return Candidate{Mask: RectMask(height, width, box), Score: 0}
	}

	mask := gocv.NewMat()
	defer mask.Close()
	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	gocv.GrabCut(*img, &mask, rect, &bgdModel, &fgdModel, p.iterations, gocv.GCInitWithRect)

	center := image.Point{X: (rect.Min.X + rect.Max.X) / 2, Y: (rect.Min.Y + rect.Max.Y) / 2}
	return p.finish(&mask, center)
}

func (p *GrabCutPredictor) finish(mask *gocv.Mat, seed image.Point) Candidate {
	fgMask := p.maskProcessor.ExtractForeground(mask)
	defer fgMask.Close()

	optimized := p.maskProcessor.MorphologyOptimize(&fgMask, p.kernelSize)
	defer optimized.Close()

	kept := p.maskProcessor.KeepContaining(&optimized, seed)
	defer kept.Close()

	result := p.maskProcessor.ToMask(&kept)
	return Candidate{
		Mask:  result,
		Score: calculateConfidence(result),
	}
}

func fillDisk(mask *gocv.Mat, pt model.Point, radius int, value uint8) {
	cx, cy := int(pt.X), int(pt.Y)
	r2 := radius * radius
	for y := max(0, cy-radius); y <= min(mask.Rows()-1, cy+radius); y++ {
		for x := max(0, cx-radius); x <= min(mask.Cols()-1, cx+radius); x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r2 {
				mask.SetUCharAt(y, x, value)
			}
		}
	}
}

// calculateConfidence 以前景占比估计置信度，限制在 [0.05, 0.95]
func calculateConfidence(mask *model.Mask) float64 {
	total := mask.Width * mask.Height
	if total == 0 {
		return 0.05
	}
	confidence := float64(mask.Count()) / float64(total)
	if confidence < 0.05 {
		confidence = 0.05
	}
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

func hasForeground(points []model.Point) bool {
	for _, pt := range points {
		if pt.Label == model.LabelForeground {
			return true
		}
	}
	return false
}
