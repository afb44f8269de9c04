package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/evangelionleo/labelU/config"
	"github.com/evangelionleo/labelU/model"
	"github.com/evangelionleo/labelU/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ResultCache 自动标注结果缓存
type ResultCache interface {
	GetAnnotation(ctx context.Context, key string) (*model.AnnotationResult, error)
	SetAnnotation(ctx context.Context, key string, result *model.AnnotationResult) error
	Ping(ctx context.Context) error
}

type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetAnnotation 从缓存获取标注结果，未命中返回 nil, nil
func (s *RedisService) GetAnnotation(ctx context.Context, key string) (*model.AnnotationResult, error) {
	data, err := s.client.Get(ctx, annotationKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var result model.AnnotationResult
	if err := json.Unmarshal(data, &result); err != nil {
		utils.Logger.Error("failed to unmarshal annotation result",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &result, nil
}

// SetAnnotation 写入标注结果
func (s *RedisService) SetAnnotation(ctx context.Context, key string, result *model.AnnotationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, annotationKey(key), data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func annotationKey(key string) string {
	return utils.CacheKey("annotate", key)
}
