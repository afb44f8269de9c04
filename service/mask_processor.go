//go:build gocv

package service

import (
	"image"
	"image/color"

	"github.com/evangelionleo/labelU/model"
	"gocv.io/x/gocv"
)

// MaskProcessor 负责 GrabCut 结果的后处理
type MaskProcessor struct{}

func NewMaskProcessor() *MaskProcessor {
	return &MaskProcessor{}
}

// ExtractForeground 提取确定前景和可能前景，输出 0/255 掩码
func (mp *MaskProcessor) ExtractForeground(mask *gocv.Mat) gocv.Mat {
	fgMask := gocv.NewMat()
	fgd := gocv.NewMatFromScalar(gocv.Scalar{Val1: float64(gcFgd)}, gocv.MatTypeCV8U)
	defer fgd.Close()
	gocv.Compare(*mask, fgd, &fgMask, gocv.CompareEQ)

	fgMaskPr := gocv.NewMat()
	defer fgMaskPr.Close()
	prFgd := gocv.NewMatFromScalar(gocv.Scalar{Val1: float64(gcPRFgd)}, gocv.MatTypeCV8U)
	defer prFgd.Close()
	gocv.Compare(*mask, prFgd, &fgMaskPr, gocv.CompareEQ)

	combined := gocv.NewMat()
	gocv.BitwiseOr(fgMask, fgMaskPr, &combined)
	fgMask.Close()

	return combined
}

// MorphologyOptimize 先开后闭，去掉噪点并填补小孔
func (mp *MaskProcessor) MorphologyOptimize(mask *gocv.Mat, kernelSize int) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: kernelSize, Y: kernelSize})
	defer kernel.Close()

	opened := gocv.NewMat()
	gocv.MorphologyEx(*mask, &opened, gocv.MorphOpen, kernel)

	closed := gocv.NewMat()
	gocv.MorphologyEx(opened, &closed, gocv.MorphClose, kernel)
	opened.Close()

	return closed
}

// KeepContaining 只保留包含 seed 的连通区域，seed 不在任何区域内时保留最大区域。
// 返回的 Mat 总是新分配的。
func (mp *MaskProcessor) KeepContaining(mask *gocv.Mat, seed image.Point) gocv.Mat {
	contours := gocv.FindContours(*mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return mask.Clone()
	}

	keep := -1
	maxArea := 0.0
	maxIndex := 0
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		if keep < 0 && gocv.PointPolygonTest(c, seed, false) >= 0 {
			keep = i
		}
		area := gocv.ContourArea(c)
		if area > maxArea {
			maxArea = area
			maxIndex = i
		}
	}
	if keep < 0 {
		keep = maxIndex
	}

	newMask := gocv.NewMatWithSize(mask.Rows(), mask.Cols(), gocv.MatTypeCV8U)
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.DrawContours(&newMask, contours, keep, white, -1)

	return newMask
}

// ToMask 将 0/255 的单通道 Mat 转为 model.Mask
func (mp *MaskProcessor) ToMask(mat *gocv.Mat) *model.Mask {
	if img, err := mat.ToImage(); err == nil {
		if gray, ok := img.(*image.Gray); ok {
			return MaskFromGray(gray, 127)
		}
	}

	mask := model.NewMask(mat.Rows(), mat.Cols())
	for y := 0; y < mat.Rows(); y++ {
		for x := 0; x < mat.Cols(); x++ {
			if mat.GetUCharAt(y, x) > 127 {
				mask.Set(x, y, true)
			}
		}
	}
	return mask
}
