package service

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
)

func newTestManager(maxSessions int) *SessionManager {
	segmenter := NewFallbackPredictor(nil, NewSyntheticPredictor(), nil)
	return NewSessionManager(&config.SessionConfig{MaxSessions: maxSessions}, segmenter)
}

func startTestSession(t *testing.T, m *SessionManager, width, height int) *Session {
	t.Helper()

	path := writePNG(t, t.TempDir(), "img.png", width, height)
	session, err := m.Start(context.Background(), path)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return session
}

func TestStartSession(t *testing.T) {
	m := newTestManager(0)
	session := startTestSession(t, m, 64, 32)

	info := session.Info()
	if info.Width != 64 || info.Height != 32 {
		t.Fatalf("size = %dx%d, want 64x32", info.Width, info.Height)
	}
	if len(info.Points) != 0 {
		t.Fatalf("new session has %d points", len(info.Points))
	}
	if ids := m.List(); len(ids) != 1 || ids[0] != session.ID() {
		t.Fatalf("list = %v", ids)
	}
}

func TestStartSessionErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("definitely not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		path string
		want error
	}{
		{"empty path", "", ErrInvalidInput},
		{"missing file", filepath.Join(dir, "missing.png"), ErrNotFound},
		{"directory", dir, ErrImageLoad},
		{"not an image", garbage, ErrImageLoad},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(0)
			_, err := m.Start(context.Background(), tc.path)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if m.Len() != 0 {
				t.Fatalf("failed start registered %d sessions", m.Len())
			}
		})
	}
}

func TestStartSessionLimit(t *testing.T) {
	m := newTestManager(1)
	startTestSession(t, m, 8, 8)

	path := writePNG(t, t.TempDir(), "second.png", 8, 8)
	if _, err := m.Start(context.Background(), path); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("err = %v, want ErrTooManySessions", err)
	}
	if m.Len() != 1 {
		t.Fatalf("len = %d, want 1", m.Len())
	}
}

func TestAddPointSyntheticMask(t *testing.T) {
	m := newTestManager(0)
	session := startTestSession(t, m, 400, 400)

	result, err := m.AddPoint(context.Background(), session.ID(), 100, 100, model.LabelForeground, false)
	if err != nil {
		t.Fatalf("add point: %v", err)
	}

	if result.TotalPoints != 1 {
		t.Fatalf("total points = %d, want 1", result.TotalPoints)
	}
	if result.BBox != (model.BBox{50, 50, 150, 150}) {
		t.Fatalf("bbox = %v, want [50 50 150 150]", result.BBox)
	}
	if result.Source != "synthetic" || result.Score != 1.0 {
		t.Fatalf("source = %q, score = %v", result.Source, result.Score)
	}
	decoded, err := DecodeMask(result.Encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(DiskMask(400, 400, 100, 100, 50)) {
		t.Fatal("encoded mask does not match the synthetic disk")
	}
}

func TestAddPointAccumulatesAndClears(t *testing.T) {
	m := newTestManager(0)
	session := startTestSession(t, m, 100, 100)
	ctx := context.Background()

	for i, want := range []int{1, 2, 3} {
		result, err := m.AddPoint(ctx, session.ID(), float64(10+i), 20, model.LabelForeground, false)
		if err != nil {
			t.Fatalf("add point %d: %v", i, err)
		}
		if result.TotalPoints != want {
			t.Fatalf("total points = %d, want %d", result.TotalPoints, want)
		}
	}

	result, err := m.AddPoint(ctx, session.ID(), 50, 50, model.LabelBackground, true)
	if err != nil {
		t.Fatalf("add point with clear_previous: %v", err)
	}
	if result.TotalPoints != 1 {
		t.Fatalf("total points after clear_previous = %d, want 1", result.TotalPoints)
	}
	if result.Point.Label != model.LabelBackground {
		t.Fatalf("label = %d", result.Point.Label)
	}

	if err := m.Clear(session.ID()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	info := session.Info()
	if len(info.Points) != 0 || info.MaskCount != 0 {
		t.Fatalf("after clear: %d points, %d masks", len(info.Points), info.MaskCount)
	}
}

func TestAddPointMaskHistoryBounded(t *testing.T) {
	m := newTestManager(0)
	session := startTestSession(t, m, 32, 32)

	for i := 0; i < maxMaskHistory+5; i++ {
		if _, err := m.AddPoint(context.Background(), session.ID(), 5, 5, model.LabelForeground, false); err != nil {
			t.Fatalf("add point %d: %v", i, err)
		}
	}

	info := session.Info()
	if info.MaskCount != maxMaskHistory {
		t.Fatalf("mask count = %d, want %d", info.MaskCount, maxMaskHistory)
	}
	if len(info.Points) != maxMaskHistory+5 {
		t.Fatalf("points = %d", len(info.Points))
	}
}

func TestAddPointValidation(t *testing.T) {
	m := newTestManager(0)
	session := startTestSession(t, m, 50, 40)

	cases := []struct {
		name  string
		id    string
		x, y  float64
		label int
		want  error
	}{
		{"unknown session", "nope", 1, 1, 1, ErrInvalidSession},
		{"bad label", session.ID(), 1, 1, 2, ErrInvalidInput},
		{"negative x", session.ID(), -1, 1, 1, ErrInvalidInput},
		{"x on right edge", session.ID(), 50, 1, 1, ErrInvalidInput},
		{"y below image", session.ID(), 1, 40, 1, ErrInvalidInput},
		{"nan", session.ID(), math.NaN(), 1, 1, ErrInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.AddPoint(context.Background(), tc.id, tc.x, tc.y, tc.label, false)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if n := len(session.Info().Points); n != 0 {
		t.Fatalf("rejected points were recorded: %d", n)
	}
}

func TestCloseSessionIdempotent(t *testing.T) {
	m := newTestManager(0)
	session := startTestSession(t, m, 16, 16)

	m.Close(session.ID())
	m.Close(session.ID())
	m.Close("never-existed")

	if m.Len() != 0 {
		t.Fatalf("len = %d, want 0", m.Len())
	}
	if _, err := m.AddPoint(context.Background(), session.ID(), 1, 1, 1, false); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("err = %v, want ErrInvalidSession", err)
	}
	if err := m.Clear(session.ID()); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("clear err = %v, want ErrInvalidSession", err)
	}
}

func TestConcurrentAddPoint(t *testing.T) {
	m := newTestManager(0)
	session := startTestSession(t, m, 64, 64)

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := m.AddPoint(context.Background(), session.ID(), float64(w), float64(i), 1, false); err != nil {
					t.Errorf("add point: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if n := len(session.Info().Points); n != workers*perWorker {
		t.Fatalf("points = %d, want %d", n, workers*perWorker)
	}
}
