package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/mbti-relay/backend/internal/service/llm"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderArk        = "ark"

	DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel    = "mistralai/mixtral-8x7b-instruct"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Classify ClassifyConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	classify, err := loadClassifyConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Classify: classify,
		Log:      LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info")},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	SessionIdleTTL time.Duration
}

// LogConfig 控制 zerolog 全局日志级别。
type LogConfig struct {
	Level string
}

// ClassifyConfig 控制一次性的人格判定。
type ClassifyConfig struct {
	Enabled   bool
	Threshold int
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	var addr string
	switch {
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		addr = port
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	default:
		addr = ":" + port
	}

	rps, err := parseOptionalFloatEnv("RATE_LIMIT_RPS")
	if err != nil {
		return ServerConfig{}, err
	}
	rateLimit := 1.0
	if rps != nil {
		rateLimit = *rps
	}

	burst, err := parseOptionalIntEnv("RATE_LIMIT_BURST")
	if err != nil {
		return ServerConfig{}, err
	}
	rateBurst := 5
	if burst != nil {
		rateBurst = *burst
	}

	ttl, err := parseOptionalIntEnv("SESSION_IDLE_TTL")
	if err != nil {
		return ServerConfig{}, err
	}
	idleTTL := 60 * time.Minute
	if ttl != nil {
		idleTTL = time.Duration(*ttl) * time.Minute
	}

	return ServerConfig{
		Addr:           addr,
		AllowedOrigins: splitList(getEnvOrDefault("ALLOWED_ORIGINS", "*")),
		RateLimitRPS:   rateLimit,
		RateLimitBurst: rateBurst,
		SessionIdleTTL: idleTTL,
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider     string
	APIKey       string
	Endpoint     string
	Model        string
	SystemPrompt string
	Referer      string
	Title        string
	Timeout      time.Duration
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int

	// Ark 专用
	AccessKey string
	SecretKey string
	BaseURL   string
	Region    string
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == ProviderArk {
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
	return c.APIKey != "" && c.Endpoint != ""
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s 凭证或模型配置缺失", c.Provider)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	switch c.Provider {
	case ProviderArk:
		cfg := &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
		}
		if c.Timeout > 0 {
			timeout := c.Timeout
			cfg.Timeout = &timeout
		}
		return ark.NewChatModel(ctx, cfg)
	case ProviderOpenRouter:
		// 未设置超时时沿用 http.Client 默认行为。
		return llm.NewClient(llm.Config{
			Endpoint:    c.Endpoint,
			APIKey:      c.APIKey,
			Model:       c.Model,
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
			Referer:     c.Referer,
			Title:       c.Title,
			HTTPClient:  &http.Client{Timeout: c.Timeout},
		})
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider)
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderOpenRouter))
	if provider != ProviderOpenRouter && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeoutSeconds, err := parseOptionalIntEnv("LLM_TIMEOUT")
	if err != nil {
		return AIConfig{}, err
	}
	var timeout time.Duration
	if timeoutSeconds != nil && *timeoutSeconds > 0 {
		timeout = time.Duration(*timeoutSeconds) * time.Second
	}

	cfg := AIConfig{
		Provider:     provider,
		SystemPrompt: strings.TrimSpace(os.Getenv("LLM_SYSTEM_PROMPT")),
		Referer:      strings.TrimSpace(os.Getenv("LLM_REFERER")),
		Title:        strings.TrimSpace(os.Getenv("LLM_TITLE")),
		Timeout:      timeout,
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
	}

	switch provider {
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.Model = strings.TrimSpace(os.Getenv("LLM_MODEL"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	default:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
		cfg.Endpoint = getEnvOrDefault("LLM_ENDPOINT", DefaultEndpoint)
		cfg.Model = getEnvOrDefault("LLM_MODEL", DefaultModel)
	}

	return cfg, nil
}

func loadClassifyConfig() (ClassifyConfig, error) {
	enabled, err := parseBoolEnv("CLASSIFY_ENABLED", true)
	if err != nil {
		return ClassifyConfig{}, err
	}

	threshold := 3
	if override, err := parseOptionalIntEnv("CLASSIFY_THRESHOLD"); err != nil {
		return ClassifyConfig{}, err
	} else if override != nil {
		if *override < 1 {
			threshold = 1
		} else {
			threshold = *override
		}
	}

	return ClassifyConfig{Enabled: enabled, Threshold: threshold}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
