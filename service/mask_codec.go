package service

import (
	"encoding/base64"
	"fmt"
	"image"

	"github.com/evangelionleo/labelU/model"
)

// EncodeMask 将掩码按行优先展开为 0/1 字节并做 base64 编码
func EncodeMask(mask *model.Mask) model.EncodedMask {
	raw := make([]byte, len(mask.Data))
	for i, v := range mask.Data {
		if v {
			raw[i] = 1
		}
	}

	return model.EncodedMask{
		Size:   [2]int{mask.Height, mask.Width},
		Counts: base64.StdEncoding.EncodeToString(raw),
	}
}

// DecodeMask 是 EncodeMask 的逆操作，任何非零字节都视为 true
func DecodeMask(enc model.EncodedMask) (*model.Mask, error) {
	height, width := enc.Height(), enc.Width()
	if height < 0 || width < 0 {
		return nil, fmt.Errorf("%w: negative mask size %dx%d", ErrInvalidInput, height, width)
	}

	raw, err := base64.StdEncoding.DecodeString(enc.Counts)
	if err != nil {
		return nil, fmt.Errorf("%w: decode mask counts: %v", ErrInvalidInput, err)
	}
	if len(raw) != height*width {
		return nil, fmt.Errorf("%w: mask has %d bytes, want %d (%dx%d)",
			ErrInvalidInput, len(raw), height*width, height, width)
	}

	mask := model.NewMask(height, width)
	for i, b := range raw {
		mask.Data[i] = b != 0
	}
	return mask, nil
}

// BoundingBox 计算掩码的紧致外接框，空掩码返回 [0,0,0,0]
func BoundingBox(mask *model.Mask) model.BBox {
	xMin, yMin := mask.Width, mask.Height
	xMax, yMax := -1, -1

	for y := 0; y < mask.Height; y++ {
		row := mask.Data[y*mask.Width : (y+1)*mask.Width]
		for x, v := range row {
			if !v {
				continue
			}
			xMin = min(xMin, x)
			xMax = max(xMax, x)
			yMin = min(yMin, y)
			yMax = max(yMax, y)
		}
	}

	if xMax < 0 {
		return model.BBox{}
	}
	return model.BBox{xMin, yMin, xMax, yMax}
}

// MaskFromGray 灰度图中大于 threshold 的像素视为前景
func MaskFromGray(img *image.Gray, threshold uint8) *model.Mask {
	b := img.Bounds()
	mask := model.NewMask(b.Dy(), b.Dx())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if img.GrayAt(b.Min.X+x, b.Min.Y+y).Y > threshold {
				mask.Set(x, y, true)
			}
		}
	}
	return mask
}

// RectMask 生成矩形掩码，box 会被裁剪到图像范围内
func RectMask(height, width int, box model.Box) *model.Mask {
	mask := model.NewMask(height, width)
	r := image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3])).
		Intersect(image.Rect(0, 0, width, height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			mask.Set(x, y, true)
		}
	}
	return mask
}

// DiskMask 生成以 (cx, cy) 为圆心、半径为 radius 的实心圆掩码
func DiskMask(height, width int, cx, cy float64, radius int) *model.Mask {
	mask := model.NewMask(height, width)
	r2 := float64(radius * radius)
	for y := 0; y < height; y++ {
		dy := float64(y) - cy
		for x := 0; x < width; x++ {
			dx := float64(x) - cx
			if dx*dx+dy*dy <= r2 {
				mask.Set(x, y, true)
			}
		}
	}
	return mask
}
