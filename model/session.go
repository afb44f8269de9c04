package model

import "time"

const (
	LabelBackground = 0
	LabelForeground = 1
)

// Point 一次点击：像素坐标加前景/背景标签
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label int     `json:"label"`
}

// XY 返回 [x, y]，与请求体中的 point 字段格式一致
func (p Point) XY() [2]float64 {
	return [2]float64{p.X, p.Y}
}

// SessionInfo 会话的只读快照
type SessionInfo struct {
	ID        string    `json:"session_id"`
	ImagePath string    `json:"image_path"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Points    []Point   `json:"points"`
	MaskCount int       `json:"mask_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StartSessionRequest struct {
	ImagePath string `json:"image_path"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// AddPointRequest label 缺省为前景，clear_previous 缺省为 false
type AddPointRequest struct {
	SessionID     string    `json:"session_id"`
	Point         []float64 `json:"point"`
	Label         *int      `json:"label"`
	ClearPrevious bool      `json:"clear_previous"`
}

type AddPointResponse struct {
	SessionID   string      `json:"session_id"`
	Point       [2]float64  `json:"point"`
	Label       int         `json:"label"`
	Mask        EncodedMask `json:"mask"`
	BBox        BBox        `json:"bbox"`
	Score       float64     `json:"score"`
	Source      string      `json:"source"`
	TotalPoints int         `json:"total_points"`
}

type SessionListResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type UploadResponse struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	URL      string `json:"url"`
}

// ErrorResponse 所有错误响应的统一格式
type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Predictor      string `json:"predictor"`
	// PredictorReady 启动时加载了真实模型，ModelAvailable 该模型当前可用
	PredictorReady bool   `json:"predictor_ready"`
	ModelAvailable bool   `json:"model_available"`
	DetectorReady  bool   `json:"detector_ready"`
	GoCVAvailable  bool   `json:"gocv_available"`
	RedisAvailable bool   `json:"redis_available"`
}
