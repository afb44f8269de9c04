package model

// Mask 与原图同尺寸的二值掩码，按行优先存储
type Mask struct {
	Height int
	Width  int
	Data   []bool
}

// NewMask 创建全 false 的掩码
func NewMask(height, width int) *Mask {
	if height < 0 {
		height = 0
	}
	if width < 0 {
		width = 0
	}
	return &Mask{
		Height: height,
		Width:  width,
		Data:   make([]bool, height*width),
	}
}

func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Data[y*m.Width+x]
}

func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Data[y*m.Width+x] = v
}

// Count 返回为 true 的像素数
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

func (m *Mask) Equal(o *Mask) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Height != o.Height || m.Width != o.Width || len(m.Data) != len(o.Data) {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

// EncodedMask 掩码的传输格式
// Counts 是逐像素 0/1 字节（行优先）的 base64，并不是 COCO RLE，字段名仅为兼容前端
type EncodedMask struct {
	Size   [2]int `json:"size"` // [height, width]
	Counts string `json:"counts"`
}

func (e EncodedMask) Height() int { return e.Size[0] }
func (e EncodedMask) Width() int  { return e.Size[1] }

// BBox [x_min, y_min, x_max, y_max]，闭区间像素坐标，空掩码为 [0,0,0,0]
type BBox [4]int
