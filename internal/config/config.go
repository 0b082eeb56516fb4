package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config aggregates every setting the service needs.
type Config struct {
	Server ServerConfig
	KB     KBConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	kb, err := loadKBConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, KB: kb}, nil
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
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// KBConfig describes the managed knowledge-base endpoint and the request
// defaults applied when the UI does not override them.
type KBConfig struct {
	Region          string
	KnowledgeBaseID string
	ModelArn        string
	MaxTokens       int32
	Temperature     float32
	TopP            float32
	NumResults      int32
	HistoryLimit    int
	FilterKey       string
	DocVersions     []string
}

// Enabled reports whether a knowledge base has been configured.
func (c KBConfig) Enabled() bool {
	return c.KnowledgeBaseID != ""
}

// DefaultVersion returns the document version preselected in the UI.
func (c KBConfig) DefaultVersion() string {
	if len(c.DocVersions) == 0 {
		return ""
	}
	return c.DocVersions[0]
}

// KnownVersion reports whether ver is one of the configured document versions.
func (c KBConfig) KnownVersion(ver string) bool {
	for _, v := range c.DocVersions {
		if v == ver {
			return true
		}
	}
	return false
}

func loadKBConfig() (KBConfig, error) {
	region := getEnvOrDefault("AWS_REGION", "us-west-2")

	maxTokens, err := parseInt32Env("KB_MAX_TOKENS", 4000)
	if err != nil {
		return KBConfig{}, err
	}

	temperature, err := parseFloat32Env("KB_TEMPERATURE", 0.1)
	if err != nil {
		return KBConfig{}, err
	}

	topP, err := parseFloat32Env("KB_TOP_P", 0.9)
	if err != nil {
		return KBConfig{}, err
	}

	numResults, err := parseInt32Env("KB_NUM_RESULTS", 5)
	if err != nil {
		return KBConfig{}, err
	}

	historyLimit, err := parseIntEnv("KB_HISTORY_LIMIT", 3)
	if err != nil {
		return KBConfig{}, err
	}
	if historyLimit < 0 {
		historyLimit = 0
	}

	versions := splitCSV(getEnvOrDefault("KB_DOC_VERSIONS", "2,1"))
	if len(versions) == 0 {
		return KBConfig{}, fmt.Errorf("KB_DOC_VERSIONS must name at least one version")
	}

	defaultArn := fmt.Sprintf(
		"arn:aws:bedrock:%s::foundation-model/anthropic.claude-3-5-sonnet-20241022-v2:0",
		region,
	)

	return KBConfig{
		Region:          region,
		KnowledgeBaseID: strings.TrimSpace(os.Getenv("KB_ID")),
		ModelArn:        getEnvOrDefault("KB_MODEL_ARN", defaultArn),
		MaxTokens:       maxTokens,
		Temperature:     temperature,
		TopP:            topP,
		NumResults:      numResults,
		HistoryLimit:    historyLimit,
		FilterKey:       getEnvOrDefault("KB_FILTER_KEY", "ver"),
		DocVersions:     versions,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseInt32Env(key string, defaultValue int32) (int32, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return int32(val), nil
}

func parseFloat32Env(key string, defaultValue float32) (float32, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return float32(val), nil
}
