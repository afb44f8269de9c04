package service

import (
	"encoding/base64"
	"errors"
	"image"
	"testing"

	"github.com/evangelionleo/labelU/model"
)

func TestEncodeMaskKnownBytes(t *testing.T) {
	mask := model.NewMask(2, 3)
	mask.Set(1, 0, true)
	mask.Set(2, 1, true)

	enc := EncodeMask(mask)

	if enc.Size != [2]int{2, 3} {
		t.Fatalf("size = %v, want [2 3]", enc.Size)
	}
	raw, err := base64.StdEncoding.DecodeString(enc.Counts)
	if err != nil {
		t.Fatalf("counts is not base64: %v", err)
	}
	want := []byte{0, 1, 0, 0, 0, 1}
	if string(raw) != string(want) {
		t.Fatalf("raw bytes = %v, want %v", raw, want)
	}
}

func TestMaskRoundTrip(t *testing.T) {
	cases := map[string]*model.Mask{
		"empty":  model.NewMask(4, 5),
		"disk":   DiskMask(40, 30, 12, 20, 7),
		"rect":   RectMask(16, 16, model.Box{2, 3, 9, 14}),
		"single": func() *model.Mask { m := model.NewMask(3, 3); m.Set(2, 2, true); return m }(),
	}

	for name, mask := range cases {
		t.Run(name, func(t *testing.T) {
			decoded, err := DecodeMask(EncodeMask(mask))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !decoded.Equal(mask) {
				t.Fatal("decoded mask differs from original")
			}
			if BoundingBox(decoded) != BoundingBox(mask) {
				t.Fatalf("bbox = %v, want %v", BoundingBox(decoded), BoundingBox(mask))
			}
		})
	}
}

func TestDecodeMaskErrors(t *testing.T) {
	cases := map[string]model.EncodedMask{
		"bad base64":     {Size: [2]int{1, 1}, Counts: "!!not base64!!"},
		"short":          {Size: [2]int{2, 2}, Counts: base64.StdEncoding.EncodeToString([]byte{1, 0, 1})},
		"long":           {Size: [2]int{1, 2}, Counts: base64.StdEncoding.EncodeToString([]byte{1, 0, 1})},
		"negative shape": {Size: [2]int{-1, 2}, Counts: ""},
	}

	for name, enc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeMask(enc); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestDecodeMaskNonZeroIsTrue(t *testing.T) {
	enc := model.EncodedMask{Size: [2]int{1, 3}, Counts: base64.StdEncoding.EncodeToString([]byte{0, 255, 7})}

	mask, err := DecodeMask(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mask.At(0, 0) || !mask.At(1, 0) || !mask.At(2, 0) {
		t.Fatalf("data = %v", mask.Data)
	}
}

func TestBoundingBox(t *testing.T) {
	if got := BoundingBox(model.NewMask(10, 10)); got != (model.BBox{0, 0, 0, 0}) {
		t.Fatalf("empty bbox = %v", got)
	}

	mask := model.NewMask(10, 10)
	mask.Set(3, 7, true)
	mask.Set(6, 2, true)
	if got := BoundingBox(mask); got != (model.BBox{3, 2, 6, 7}) {
		t.Fatalf("bbox = %v, want [3 2 6 7]", got)
	}

	mask = model.NewMask(5, 5)
	mask.Set(4, 4, true)
	if got := BoundingBox(mask); got != (model.BBox{4, 4, 4, 4}) {
		t.Fatalf("single pixel bbox = %v", got)
	}
}

func TestRectMaskClipsToImage(t *testing.T) {
	mask := RectMask(10, 10, model.Box{-5, 8, 3, 20})

	if got := BoundingBox(mask); got != (model.BBox{0, 8, 2, 9}) {
		t.Fatalf("bbox = %v", got)
	}
	if mask.Count() != 3*2 {
		t.Fatalf("count = %d, want 6", mask.Count())
	}
}

func TestDiskMask(t *testing.T) {
	mask := DiskMask(400, 400, 100, 100, 50)

	if got := BoundingBox(mask); got != (model.BBox{50, 50, 150, 150}) {
		t.Fatalf("bbox = %v, want [50 50 150 150]", got)
	}
	if !mask.At(100, 100) || !mask.At(150, 100) || mask.At(136, 136) {
		t.Fatal("unexpected disk membership")
	}
}

func TestMaskFromGray(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 4, 2))
	gray.Pix[1] = 200
	gray.Pix[6] = 90

	mask := MaskFromGray(gray, 127)
	if mask.Count() != 1 || !mask.At(1, 0) {
		t.Fatalf("mask data = %v", mask.Data)
	}

	// 子图的坐标从 0 开始
	sub := gray.SubImage(image.Rect(1, 0, 3, 2)).(*image.Gray)
	mask = MaskFromGray(sub, 127)
	if mask.Width != 2 || mask.Height != 2 || !mask.At(0, 0) || mask.Count() != 1 {
		t.Fatalf("sub mask = %+v", mask)
	}
}
