package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/ewanfisher/voxmail/backend/internal/mailtool"
)

// Config aggregates every section the service needs.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Speech  SpeechConfig
	Mail    MailConfig
	Session SessionConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech := loadSpeechConfig()
	mail := loadMailConfig()

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Speech: speech, Mail: mail, Session: session}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the chat-model collaborator used for intent
// classification and reply generation.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates a model instance from this configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: provide ARK_API_KEY + Model, or the AK/SK pair")
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

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// SpeechConfig describes the Whisper-compatible transcription
// collaborator.
type SpeechConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
	Enabled  bool
}

func loadSpeechConfig() SpeechConfig {
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	baseURL := getEnvOrDefault("SPEECH_BASE_URL", "https://api.groq.com/openai/v1")

	timeoutSeconds := 30
	if raw, err := parseOptionalIntEnv("SPEECH_TIMEOUT"); err == nil && raw != nil {
		timeoutSeconds = *raw
	}

	return SpeechConfig{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Model:    getEnvOrDefault("SPEECH_MODEL", "whisper-large-v3"),
		Language: getEnvOrDefault("SPEECH_LANGUAGE", "en"),
		Timeout:  time.Duration(timeoutSeconds) * time.Second,
		Enabled:  apiKey != "",
	}
}

// MailConfig carries the two fixed account slots. A slot is active
// when its credentials are present.
type MailConfig struct {
	Accounts []mailtool.AccountConfig
}

// AccountNames lists the configured account identifiers.
func (c MailConfig) AccountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for _, account := range c.Accounts {
		names = append(names, account.Name)
	}
	return names
}

func loadMailConfig() MailConfig {
	var accounts []mailtool.AccountConfig

	if account, ok := loadAccountSlot("GMAIL", "gmail", "imap.gmail.com", "smtp.gmail.com"); ok {
		accounts = append(accounts, account)
	}
	if account, ok := loadAccountSlot("ICLOUD", "icloud", "imap.mail.me.com", "smtp.mail.me.com"); ok {
		accounts = append(accounts, account)
	}

	return MailConfig{Accounts: accounts}
}

func loadAccountSlot(prefix, defaultName, defaultIMAP, defaultSMTP string) (mailtool.AccountConfig, bool) {
	username := strings.TrimSpace(os.Getenv(prefix + "_USERNAME"))
	password := strings.TrimSpace(os.Getenv(prefix + "_PASSWORD"))
	if username == "" || password == "" {
		return mailtool.AccountConfig{}, false
	}

	imapPort := getEnvOrDefault(prefix+"_IMAP_PORT", "993")
	smtpPort := getEnvOrDefault(prefix+"_SMTP_PORT", "587")

	return mailtool.AccountConfig{
		Name:     getEnvOrDefault(prefix+"_ACCOUNT_NAME", defaultName),
		IMAPHost: getEnvOrDefault(prefix+"_IMAP_HOST", defaultIMAP),
		IMAPPort: imapPort,
		SMTPHost: getEnvOrDefault(prefix+"_SMTP_HOST", defaultSMTP),
		SMTPPort: smtpPort,
		Username: username,
		Password: password,
		TLS:      imapPort == "993",
		// 465 is implicit TLS; 587 and 25 expect STARTTLS.
		SMTPTLS: smtpPort == "465",
	}, true
}

// SessionConfig controls idle expiry of conversational sessions.
type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	idleMinutes := 30
	if raw, err := parseOptionalIntEnv("SESSION_IDLE_MINUTES"); err != nil {
		return SessionConfig{}, err
	} else if raw != nil {
		if *raw < 1 {
			idleMinutes = 1
		} else {
			idleMinutes = *raw
		}
	}

	sweepSeconds := 60
	if raw, err := parseOptionalIntEnv("SESSION_SWEEP_SECONDS"); err != nil {
		return SessionConfig{}, err
	} else if raw != nil && *raw > 0 {
		sweepSeconds = *raw
	}

	return SessionConfig{
		IdleTimeout:   time.Duration(idleMinutes) * time.Minute,
		SweepInterval: time.Duration(sweepSeconds) * time.Second,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
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
