//go:build gocv

package service

import (
	"context"
	"fmt"
	"image"

	"github.com/evangelionleo/labelU/model"
	"gocv.io/x/gocv"
)

// SaliencyDetector 没有文本检测模型时，用梯度显著性找出最显著的一个区域。
// 提示词只用于生成标签。
type SaliencyDetector struct{}

func NewSaliencyDetector() (*SaliencyDetector, error) {
	return &SaliencyDetector{}, nil
}

func (sd *SaliencyDetector) Name() string { return "saliency" }

func (sd *SaliencyDetector) Ready() bool { return true }

// Detect 返回显著区域的外接框，得分为框内显著像素的占比，低于 box_threshold 时不返回
func (sd *SaliencyDetector) Detect(ctx context.Context, img image.Image, prompt string, th model.Thresholds) ([]model.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	saliency := sd.saliencyMap(&mat)
	defer saliency.Close()

	rect, ok := sd.salientRect(&saliency, mat.Cols(), mat.Rows())
	if !ok {
		return nil, nil
	}

	region := saliency.Region(rect)
	score := float64(gocv.CountNonZero(region)) / float64(rect.Dx()*rect.Dy())
	region.Close()

	if score < th.BoxThreshold {
		return nil, nil
	}

	return []model.Detection{{
		Box: model.Box{
			float64(rect.Min.X), float64(rect.Min.Y),
			float64(rect.Max.X), float64(rect.Max.Y),
		},
		Score: score,
		Label: prompt,
	}}, nil
}

// saliencyMap Sobel 梯度幅值经高斯模糊后做 Otsu 二值化
func (sd *SaliencyDetector) saliencyMap(img *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)

	gradX := gocv.NewMat()
	gradY := gocv.NewMat()
	defer gradX.Close()
	defer gradY.Close()
	gocv.Sobel(gray, &gradX, gocv.MatTypeCV16S, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gradY, gocv.MatTypeCV16S, 0, 1, 3, 1, 0, gocv.BorderDefault)

	absX := gocv.NewMat()
	absY := gocv.NewMat()
	defer absX.Close()
	defer absY.Close()
	gocv.ConvertScaleAbs(gradX, &absX, 1, 0)
	gocv.ConvertScaleAbs(gradY, &absY, 1, 0)

	gradient := gocv.NewMat()
	defer gradient.Close()
	gocv.AddWeighted(absX, 0.5, absY, 0.5, 0, &gradient)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gradient, &blurred, image.Point{X: 21, Y: 21}, 0, 0, gocv.BorderDefault)

	saliency := gocv.NewMat()
	gocv.Threshold(blurred, &saliency, 0, 255, gocv.ThresholdOtsu)
	return saliency
}

// salientRect 膨胀后取面积最大的轮廓，外扩 5% 并裁剪到图像内
func (sd *SaliencyDetector) salientRect(saliency *gocv.Mat, width, height int) (image.Rectangle, bool) {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 21, Y: 21})
	defer kernel.Close()

	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(*saliency, &dilated, kernel)

	contours := gocv.FindContours(dilated, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var best image.Rectangle
	bestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > bestArea {
			bestArea = area
			best = gocv.BoundingRect(contours.At(i))
		}
	}
	if bestArea == 0 {
		return image.Rectangle{}, false
	}

	padding := int(float64(best.Dx()) * 0.05)
	best = image.Rect(best.Min.X-padding, best.Min.Y-padding, best.Max.X+padding, best.Max.Y+padding).
		Intersect(image.Rect(0, 0, width, height))
	return best, !best.Empty()
}
