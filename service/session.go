package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
	"github.com/evangelionleo/labelU/utils"
	"go.uber.org/zap"
)

// maxMaskHistory 每个会话保留的历史掩码数量
const maxMaskHistory = 16

// Session 一张图像上的交互式分割会话
type Session struct {
	mu sync.Mutex

	id        string
	imagePath string
	image     image.Image
	width     int
	height    int
	points    []model.Point
	masks     []*model.Mask
	createdAt time.Time
	updatedAt time.Time
}

func (s *Session) ID() string { return s.id }

// Info 返回会话快照
func (s *Session) Info() model.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.SessionInfo{
		ID:        s.id,
		ImagePath: s.imagePath,
		Width:     s.width,
		Height:    s.height,
		Points:    append([]model.Point(nil), s.points...),
		MaskCount: len(s.masks),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

// PointResult add_point 的结果
type PointResult struct {
	SessionID   string
	Point       model.Point
	Mask        *model.Mask
	Encoded     model.EncodedMask
	BBox        model.BBox
	Score       float64
	Source      string
	TotalPoints int
}

// SessionManager 管理进程内的分割会话，不做持久化，重启即丢失
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	segmenter   Segmenter
	maxSessions int
}

func NewSessionManager(cfg *config.SessionConfig, segmenter Segmenter) *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		segmenter:   segmenter,
		maxSessions: cfg.MaxSessions,
	}
}

// Start 加载图像并创建会话。文件不存在返回 ErrNotFound，无法解码返回 ErrImageLoad，
// 失败时不会注册任何会话。
func (m *SessionManager) Start(ctx context.Context, imagePath string) (*Session, error) {
	if imagePath == "" {
		return nil, fmt.Errorf("%w: image path is empty", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := LoadImage(imagePath)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		id:        utils.NewID(),
		imagePath: imagePath,
		image:     img,
		width:     img.Bounds().Dx(),
		height:    img.Bounds().Dy(),
		createdAt: now,
		updatedAt: now,
	}

	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, m.maxSessions)
	}
	m.sessions[session.id] = session
	count := len(m.sessions)
	m.mu.Unlock()

	utils.Logger.Info("session started",
		zap.String("session_id", session.id),
		zap.String("image_path", imagePath),
		zap.Int("width", session.width),
		zap.Int("height", session.height),
		zap.Int("active_sessions", count))

	return session, nil
}

// LoadImage 打开并解码图像文件
func LoadImage(path string) (image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrImageLoad, path)
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %s has no pixels", ErrImageLoad, path)
	}
	return img, nil
}

// Get 按 ID 查找会话
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSession, id)
	}
	return session, nil
}

// AddPoint 追加一个点击（clearPrevious 时先清空之前的点），
// 用累计的全部点重新预测并返回得分最高的掩码
func (m *SessionManager) AddPoint(ctx context.Context, id string, x, y float64, label int, clearPrevious bool) (*PointResult, error) {
	session, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	if label != model.LabelForeground && label != model.LabelBackground {
		return nil, fmt.Errorf("%w: label must be 0 or 1, got %d", ErrInvalidInput, label)
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return nil, fmt.Errorf("%w: point is not finite", ErrInvalidInput)
	}

	// 同一会话的点击串行处理，不同会话互不阻塞
	session.mu.Lock()
	defer session.mu.Unlock()

	if x < 0 || y < 0 || x >= float64(session.width) || y >= float64(session.height) {
		return nil, fmt.Errorf("%w: point (%g, %g) outside image %dx%d",
			ErrInvalidInput, x, y, session.width, session.height)
	}

	prevPoints, prevMasks := session.points, session.masks
	if clearPrevious {
		session.points = nil
		session.masks = nil
	}

	point := model.Point{X: x, Y: y, Label: label}
	session.points = append(session.points, point)

	result, err := m.predict(ctx, session, point)
	if err != nil {
		// 预测失败时撤销本次点击
		session.points, session.masks = prevPoints, prevMasks
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: segmentation failed: %v", ErrInternal, err)
	}
	return result, nil
}

// predict 调用方需持有 session.mu
func (m *SessionManager) predict(ctx context.Context, session *Session, point model.Point) (*PointResult, error) {
	prompt := Prompt{Points: append([]model.Point(nil), session.points...)}
	prediction, err := m.segmenter.Segment(ctx, session.image, prompt)
	if err != nil {
		return nil, err
	}
	best, err := SelectBest(prediction.Candidates)
	if err != nil {
		return nil, err
	}

	session.masks = append(session.masks, best.Mask)
	if len(session.masks) > maxMaskHistory {
		session.masks = session.masks[len(session.masks)-maxMaskHistory:]
	}
	session.updatedAt = time.Now()

	utils.Logger.Debug("point added",
		zap.String("session_id", session.id),
		zap.Float64("x", point.X),
		zap.Float64("y", point.Y),
		zap.Int("label", point.Label),
		zap.Int("total_points", len(session.points)),
		zap.String("source", prediction.Source),
		zap.Float64("score", best.Score),
		zap.Duration("duration", prediction.Duration))

	return &PointResult{
		SessionID:   session.id,
		Point:       point,
		Mask:        best.Mask,
		Encoded:     EncodeMask(best.Mask),
		BBox:        BoundingBox(best.Mask),
		Score:       best.Score,
		Source:      prediction.Source,
		TotalPoints: len(session.points),
	}, nil
}

// Clear 清空会话中的点和掩码
func (m *SessionManager) Clear(id string) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}

	session.mu.Lock()
	session.points = nil
	session.masks = nil
	session.updatedAt = time.Now()
	session.mu.Unlock()

	utils.Logger.Debug("session cleared", zap.String("session_id", id))
	return nil
}

// Close 删除会话，会话不存在时什么也不做
func (m *SessionManager) Close(id string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		info := session.Info()
		utils.Logger.Info("session closed",
			zap.String("session_id", id),
			zap.Int("points", len(info.Points)),
			zap.Int("masks", info.MaskCount),
			zap.Duration("age", time.Since(info.CreatedAt)))
	}
}

// List 返回所有活跃会话 ID（已排序）
func (m *SessionManager) List() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
