package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 LABELU_SERVER_PORT
const EnvPrefix = "LABELU"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Session   SessionConfig   `mapstructure:"session"`
	Predictor PredictorConfig `mapstructure:"predictor"`
	GrabCut   GrabCutConfig   `mapstructure:"grabcut"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Inference InferenceConfig `mapstructure:"inference"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	BasePath     string        `mapstructure:"base_path"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize     int64    `mapstructure:"max_size"`
	UploadDir   string   `mapstructure:"upload_dir"`
	AllowedExts []string `mapstructure:"allowed_exts"`
}

type SessionConfig struct {
	// MaxSessions 为 0 表示不限制
	MaxSessions int `mapstructure:"max_sessions"`
}

// PredictorConfig 远程分割模型服务，URL 为空时不启用
type PredictorConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Multimask bool          `mapstructure:"multimask"`
}

type GrabCutConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Iterations int  `mapstructure:"iterations"`
	SeedRadius int  `mapstructure:"seed_radius"`
	KernelSize int  `mapstructure:"kernel_size"`
}

// DetectorConfig 远程文本检测模型服务，URL 为空时使用模拟检测
type DetectorConfig struct {
	URL           string        `mapstructure:"url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Saliency      bool          `mapstructure:"saliency"`
	BoxThreshold  float64       `mapstructure:"box_threshold"`
	TextThreshold float64       `mapstructure:"text_threshold"`
}

type InferenceConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
}

// Load 从 YAML 文件加载配置，环境变量优先于文件
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// New 加载配置，文件不存在时返回默认配置
func New(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(configPath)
}

// Validate 检查配置的取值范围
func (c *Config) Validate() error {
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive, got %d", c.Upload.MaxSize)
	}
	if c.Upload.UploadDir == "" {
		return errors.New("upload.upload_dir must not be empty")
	}
	if len(c.Upload.AllowedExts) == 0 {
		return errors.New("upload.allowed_exts must not be empty")
	}
	if c.Session.MaxSessions < 0 {
		return fmt.Errorf("session.max_sessions must not be negative, got %d", c.Session.MaxSessions)
	}
	if c.Inference.MaxConcurrent <= 0 {
		return fmt.Errorf("inference.max_concurrent must be positive, got %d", c.Inference.MaxConcurrent)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.upload_dir", d.Upload.UploadDir)
	v.SetDefault("upload.allowed_exts", d.Upload.AllowedExts)

	v.SetDefault("session.max_sessions", d.Session.MaxSessions)

	v.SetDefault("predictor.url", d.Predictor.URL)
	v.SetDefault("predictor.timeout", d.Predictor.Timeout)
	v.SetDefault("predictor.multimask", d.Predictor.Multimask)

	v.SetDefault("grabcut.enabled", d.GrabCut.Enabled)
	v.SetDefault("grabcut.iterations", d.GrabCut.Iterations)
	v.SetDefault("grabcut.seed_radius", d.GrabCut.SeedRadius)
	v.SetDefault("grabcut.kernel_size", d.GrabCut.KernelSize)

	v.SetDefault("detector.url", d.Detector.URL)
	v.SetDefault("detector.timeout", d.Detector.Timeout)
	v.SetDefault("detector.saliency", d.Detector.Saliency)
	v.SetDefault("detector.box_threshold", d.Detector.BoxThreshold)
	v.SetDefault("detector.text_threshold", d.Detector.TextThreshold)

	v.SetDefault("inference.max_concurrent", d.Inference.MaxConcurrent)
	v.SetDefault("inference.queue_timeout", d.Inference.QueueTimeout)
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":5000",
			Mode:         "debug",
			BasePath:     "/api",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:     10 * 1024 * 1024,
			UploadDir:   "./uploads",
			AllowedExts: []string{"png", "jpg", "jpeg", "gif", "bmp"},
		},
		Session: SessionConfig{
			MaxSessions: 0,
		},
		Predictor: PredictorConfig{
			URL:       "",
			Timeout:   30 * time.Second,
			Multimask: true,
		},
		GrabCut: GrabCutConfig{
			Enabled:    true,
			Iterations: 5,
			SeedRadius: 5,
			KernelSize: 5,
		},
		Detector: DetectorConfig{
			URL:           "",
			Timeout:       60 * time.Second,
			Saliency:      true,
			BoxThreshold:  0.35,
			TextThreshold: 0.25,
		},
		Inference: InferenceConfig{
			MaxConcurrent: 3,
			QueueTimeout:  30 * time.Second,
		},
	}
}
