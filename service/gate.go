package service

import (
	"context"
	"fmt"
	"time"

	"github.com/evangelionleo/labelU/config"
)

// InferenceGate 限制同时进行的模型推理数量
type InferenceGate struct {
	semaphore    chan struct{}
	queueTimeout time.Duration
}

func NewInferenceGate(cfg *config.InferenceConfig) *InferenceGate {
	n := cfg.MaxConcurrent
	if n <= 0 {
		n = 1
	}
	return &InferenceGate{
		semaphore:    make(chan struct{}, n),
		queueTimeout: cfg.QueueTimeout,
	}
}

// Acquire 等待空闲槽位，超时或 ctx 取消时返回 ErrModelUnavailable。
// 成功时返回的 release 必须被调用一次。
func (g *InferenceGate) Acquire(ctx context.Context) (release func(), err error) {
	if g.queueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.queueTimeout)
		defer cancel()
	}

	select {
	case g.semaphore <- struct{}{}:
		return func() { <-g.semaphore }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: inference queue is full: %v", ErrModelUnavailable, ctx.Err())
	}
}

// InFlight 当前正在进行的推理数量
func (g *InferenceGate) InFlight() int {
	return len(g.semaphore)
}
