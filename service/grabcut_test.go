//go:build gocv

package service

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
	"gocv.io/x/gocv"
)

// squareImage 灰色背景上的白色方块
func squareImage(size int, square image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.RGBA{R: 40, G: 40, B: 40, A: 255}
			if image.Pt(x, y).In(square) {
				c = color.RGBA{R: 250, G: 250, B: 250, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestGrabCutPointPrompt(t *testing.T) {
	p, err := NewGrabCutPredictor(&config.Default().GrabCut)
	if err != nil {
		t.Fatalf("new grabcut: %v", err)
	}

	img := squareImage(120, image.Rect(40, 40, 80, 80))
	candidates, err := p.Predict(context.Background(), img, Prompt{Points: []model.Point{{X: 60, Y: 60, Label: 1}}})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates", len(candidates))
	}

	mask := candidates[0].Mask
	if !mask.At(60, 60) {
		t.Fatal("clicked pixel is not foreground")
	}
	if mask.At(5, 5) {
		t.Fatal("corner should be background")
	}
	if s := candidates[0].Score; s < 0.05 || s > 0.95 {
		t.Fatalf("score = %v out of range", s)
	}
}

func TestGrabCutOnlyBackgroundPoints(t *testing.T) {
	p, err := NewGrabCutPredictor(&config.Default().GrabCut)
	if err != nil {
		t.Fatalf("new grabcut: %v", err)
	}

	candidates, err := p.Predict(context.Background(), squareImage(50, image.Rect(10, 10, 30, 30)),
		Prompt{Points: []model.Point{{X: 2, Y: 2, Label: 0}}})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if candidates[0].Mask.Count() != 0 || candidates[0].Score != 0 {
		t.Fatalf("count = %d, score = %v", candidates[0].Mask.Count(), candidates[0].Score)
	}
}

func TestSaliencyDetector(t *testing.T) {
	d, err := NewSaliencyDetector()
	if err != nil {
		t.Fatalf("new saliency: %v", err)
	}

	detections, err := d.Detect(context.Background(), squareImage(200, image.Rect(70, 70, 130, 130)), "box", model.Thresholds{})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(detections) != 1 || detections[0].Label != "box" {
		t.Fatalf("detections = %+v", detections)
	}
	b := detections[0].Box
	if b[0] > 70 || b[1] > 70 || b[2] < 130 || b[3] < 130 {
		t.Fatalf("box %v does not cover the square", b)
	}
}

func TestMaskProcessorToMask(t *testing.T) {
	mat := gocv.NewMatWithSize(3, 4, gocv.MatTypeCV8U)
	defer mat.Close()
	mat.SetUCharAt(1, 2, 255)
	mat.SetUCharAt(2, 0, 100)

	mask := NewMaskProcessor().ToMask(&mat)
	if mask.Height != 3 || mask.Width != 4 {
		t.Fatalf("size = %dx%d", mask.Height, mask.Width)
	}
	if !mask.At(2, 1) || mask.At(0, 2) || mask.Count() != 1 {
		t.Fatalf("mask data = %v", mask.Data)
	}
}
