package model

// Box 检测框 [x1, y1, x2, y2]，浮点像素坐标
type Box [4]float64

// Detection 文本检测模型的单个结果
type Detection struct {
	Box   Box     `json:"box"`
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

// AnnotatedObject 检测并分割后的对象
type AnnotatedObject struct {
	ObjectID          int         `json:"object_id"`
	Label             string      `json:"label"`
	BBox              Box         `json:"bbox"`
	DetectionScore    float64     `json:"detection_score"`
	SegmentationScore float64     `json:"segmentation_score"`
	Mask              EncodedMask `json:"mask"`
}

type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Thresholds struct {
	BoxThreshold  float64 `json:"box_threshold"`
	TextThreshold float64 `json:"text_threshold"`
}

// AnnotationResult 自动标注结果，也是缓存的内容
type AnnotationResult struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Objects    []AnnotatedObject `json:"objects"`
	ImageInfo  ImageInfo         `json:"image_info"`
	TextPrompt string            `json:"text_prompt,omitempty"`
	Thresholds *Thresholds       `json:"thresholds,omitempty"`
	MD5        string            `json:"md5,omitempty"`
	Cached     bool              `json:"cached,omitempty"`
	Filename   string            `json:"filename,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type BatchAnnotationResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Results []*AnnotationResult `json:"results"`
}
