package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	AI             AIConfig             `toml:"ai" yaml:"ai"`
	Arxiv          ArxivConfig          `toml:"arxiv" yaml:"arxiv"`
	KeywordFilter  KeywordFilterConfig  `toml:"keyword_filter" yaml:"keyword_filter"`
	Classification ClassificationConfig `toml:"classification" yaml:"classification"`
	Ranking        RankingConfig        `toml:"ranking" yaml:"ranking"`
	Output         OutputConfig         `toml:"output" yaml:"output"`
	Server         ServerConfig         `toml:"server" yaml:"server"`
	Log            LogConfig            `toml:"log" yaml:"log"`
}

// AIConfig holds AI provider settings.
type AIConfig struct {
	Provider string `toml:"provider" yaml:"provider"`
	APIKey   string `toml:"api_key" yaml:"api_key"`
	BaseURL  string `toml:"base_url" yaml:"base_url"`
}

// ArxivConfig controls which papers are pulled from arXiv.
type ArxivConfig struct {
	Category string `toml:"category" yaml:"category"`
	Days     int    `toml:"days" yaml:"days"`
	Limit    int    `toml:"limit" yaml:"limit"`
	NoLimit  bool   `toml:"no_limit" yaml:"no_limit"`
	APIURL   string `toml:"api_url" yaml:"api_url"`
}

// KeywordFilterConfig lists the substrings that make a paper a candidate.
type KeywordFilterConfig struct {
	Keywords []string `toml:"keywords" yaml:"keywords"`
}

// ClassificationConfig holds settings for the per-paper relevance check.
type ClassificationConfig struct {
	Model          string `toml:"model" yaml:"model"`
	Prompt         string `toml:"prompt" yaml:"prompt"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	Concurrency    int    `toml:"concurrency" yaml:"concurrency"`
}

// Timeout returns the per-call deadline.
func (c ClassificationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RankingConfig holds tournament settings.
type RankingConfig struct {
	Model          string `toml:"model" yaml:"model"`
	PromptTemplate string `toml:"prompt_template" yaml:"prompt_template"`
	ResearchFocus  string `toml:"research_focus" yaml:"research_focus"`
	ThinkTime      string `toml:"think_time" yaml:"think_time"`
	FirstRoundK    int    `toml:"first_round_k" yaml:"first_round_k"`
	FinalRoundK    int    `toml:"final_round_k" yaml:"final_round_k"`
	BatchSize      int    `toml:"batch_size" yaml:"batch_size"`
	MergeThreshold *int   `toml:"merge_threshold" yaml:"merge_threshold"`
	Concurrency    int    `toml:"concurrency" yaml:"concurrency"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout returns the per-call deadline.
func (c RankingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OutputConfig holds where run artifacts are written.
type OutputConfig struct {
	Dir string `toml:"dir" yaml:"dir"`
}

// AllDir holds every fetched paper.
func (c OutputConfig) AllDir() string { return filepath.Join(c.Dir, "all") }

// FilteredDir holds papers that passed both filters.
func (c OutputConfig) FilteredDir() string { return filepath.Join(c.Dir, "filtered") }

// RankedDir holds ranking reports.
func (c OutputConfig) RankedDir() string { return filepath.Join(c.Dir, "ranked") }

// DatabasePath is the SQLite file inside the output directory.
func (c OutputConfig) DatabasePath() string { return filepath.Join(c.Dir, "paperfeed.db") }

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int `toml:"port" yaml:"port"`
	ScheduleHours int `toml:"schedule_hours" yaml:"schedule_hours"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

const (
	DefaultArxivAPIURL = "https://export.arxiv.org/api/query"

	DefaultClassificationPrompt = `You are a precise research classifier. Given a paper title and abstract, ` +
		`answer ONLY with strict JSON: {"reason": string, "is_relevant": boolean}. ` +
		`Mark is_relevant=true if and only if the paper is about Large Language Models (LLMs) and their interpretability. ` +
		`If not, mark is_relevant=false. But first, give me three sentence reason for your answer under the reason field.`

	DefaultRankingPromptTemplate = `From the following papers, select exactly top {num} most relevant and important for my {research_focus}.
Return your selection as plain markdown text with the paper titles and brief reasoning/summary for each choice.
Do not include any other text. Also do not rank them (use unordered list).
The final answer should be exactly {num} paragraphs.
Think for maximum of {think_time} before selecting the papers.`

	defaultResearchFocus = "phd LLM interpretability research"
	defaultThinkTime     = "60 seconds"
	defaultMergeThresh   = 4
)

// DefaultKeywords is the case-sensitive keyword list applied when the config
// names none.
var DefaultKeywords = []string{"LLM", " LLM ", " LLMs ", "Large Language Model", "interpretability", "VLM", "MLLM"}

const defaultConfigContent = `[ai]
provider = "ollama"               # "ollama", "anthropic" or "openai"
api_key = ""                      # Hosted providers only (or set AI_API_KEY env var)
base_url = ""                     # Empty uses the provider default (or set OLLAMA_URL)

[arxiv]
category = "cs.AI"
days = 1                          # Papers submitted since midnight UTC this many days ago
limit = 200
no_limit = false

[keyword_filter]
keywords = ["LLM", " LLM ", " LLMs ", "Large Language Model", "interpretability", "VLM", "MLLM"]

[classification]
model = "llama3.2"
timeout_seconds = 60
concurrency = 1

[ranking]
model = "qwen3"
research_focus = "phd LLM interpretability research"
think_time = "60 seconds"
first_round_k = 2
final_round_k = 5
batch_size = 10
merge_threshold = 4
concurrency = 1
timeout_seconds = 250

[output]
dir = "./data"

[server]
port = 8080
schedule_hours = 0                # 0 disables scheduled runs

[log]
level = "info"                    # debug, info, warn, error
format = "text"                   # text or json
`

// definedFunc reports whether a key path was written in the config file.
type definedFunc func(key ...string) bool

// Load reads and parses the config from the given path. Paths ending in
// .yaml or .yml are decoded as YAML, everything else as TOML. If the file
// does not exist, a default TOML config is created at that path. Environment
// variables override values from the file with highest priority.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if isYAML(path) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		if err := createDefault(path); err != nil {
			return nil, fmt.Errorf("creating default config: %w", err)
		}
		slog.Info("created default config file", "path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var (
		cfg     Config
		defined definedFunc
	)
	if isYAML(path) {
		defined, err = decodeYAML(data, &cfg)
	} else {
		defined, err = decodeTOML(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Validate explicitly-set values before applying defaults, so that
	// explicitly writing "port = 0" is an error rather than silently
	// being replaced with the default.
	if err := validateExplicit(&cfg, defined); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when the file sets nothing.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decodeTOML(data []byte, cfg *Config) (definedFunc, error) {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, err
	}
	return md.IsDefined, nil
}

func decodeYAML(data []byte, cfg *Config) (definedFunc, error) {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return func(key ...string) bool {
		var node any = raw
		for _, k := range key {
			m, ok := node.(map[string]any)
			if !ok {
				return false
			}
			if node, ok = m[k]; !ok {
				return false
			}
		}
		return true
	}, nil
}

// createDefault writes the default config content to the given path,
// creating any parent directories as needed.
func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigContent), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// validateExplicit checks values that were explicitly set in the file.
// This catches cases like "port = 0" which would otherwise be silently
// replaced by the default value.
func validateExplicit(cfg *Config, defined definedFunc) error {
	if defined("server", "port") {
		if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
			return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
		}
	}
	if defined("arxiv", "days") && cfg.Arxiv.Days < 1 {
		return fmt.Errorf("invalid arxiv.days %d: must be >= 1", cfg.Arxiv.Days)
	}
	if defined("arxiv", "limit") && cfg.Arxiv.Limit < 1 {
		return fmt.Errorf("invalid arxiv.limit %d: must be >= 1", cfg.Arxiv.Limit)
	}
	for _, k := range []struct {
		key string
		val int
	}{
		{"first_round_k", cfg.Ranking.FirstRoundK},
		{"final_round_k", cfg.Ranking.FinalRoundK},
		{"batch_size", cfg.Ranking.BatchSize},
		{"concurrency", cfg.Ranking.Concurrency},
		{"timeout_seconds", cfg.Ranking.TimeoutSeconds},
	} {
		if defined("ranking", k.key) && k.val < 1 {
			return fmt.Errorf("invalid ranking.%s %d: must be >= 1", k.key, k.val)
		}
	}
	if defined("classification", "concurrency") && cfg.Classification.Concurrency < 1 {
		return fmt.Errorf("invalid classification.concurrency %d: must be >= 1", cfg.Classification.Concurrency)
	}
	if defined("classification", "timeout_seconds") && cfg.Classification.TimeoutSeconds < 1 {
		return fmt.Errorf("invalid classification.timeout_seconds %d: must be >= 1", cfg.Classification.TimeoutSeconds)
	}
	return nil
}

// applyDefaults sets default values for any zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "ollama"
	}

	if cfg.Arxiv.Category == "" {
		cfg.Arxiv.Category = "cs.AI"
	}
	if cfg.Arxiv.Days == 0 {
		cfg.Arxiv.Days = 1
	}
	if cfg.Arxiv.Limit == 0 {
		cfg.Arxiv.Limit = 200
	}
	if cfg.Arxiv.APIURL == "" {
		cfg.Arxiv.APIURL = DefaultArxivAPIURL
	}

	if len(cfg.KeywordFilter.Keywords) == 0 {
		cfg.KeywordFilter.Keywords = append([]string(nil), DefaultKeywords...)
	}

	if cfg.Classification.Model == "" {
		cfg.Classification.Model = "llama3.2"
	}
	if cfg.Classification.Prompt == "" {
		cfg.Classification.Prompt = DefaultClassificationPrompt
	}
	if cfg.Classification.TimeoutSeconds == 0 {
		cfg.Classification.TimeoutSeconds = 60
	}
	if cfg.Classification.Concurrency == 0 {
		cfg.Classification.Concurrency = 1
	}

	if cfg.Ranking.Model == "" {
		cfg.Ranking.Model = "qwen3"
	}
	if cfg.Ranking.PromptTemplate == "" {
		cfg.Ranking.PromptTemplate = DefaultRankingPromptTemplate
	}
	if cfg.Ranking.ResearchFocus == "" {
		cfg.Ranking.ResearchFocus = defaultResearchFocus
	}
	if cfg.Ranking.ThinkTime == "" {
		cfg.Ranking.ThinkTime = defaultThinkTime
	}
	if cfg.Ranking.FirstRoundK == 0 {
		cfg.Ranking.FirstRoundK = 2
	}
	if cfg.Ranking.FinalRoundK == 0 {
		cfg.Ranking.FinalRoundK = 5
	}
	if cfg.Ranking.BatchSize == 0 {
		cfg.Ranking.BatchSize = 10
	}
	// A pointer so that an explicit 0 (never merge) survives.
	if cfg.Ranking.MergeThreshold == nil {
		v := defaultMergeThresh
		cfg.Ranking.MergeThreshold = &v
	}
	if cfg.Ranking.Concurrency == 0 {
		cfg.Ranking.Concurrency = 1
	}
	if cfg.Ranking.TimeoutSeconds == 0 {
		cfg.Ranking.TimeoutSeconds = 250
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "./data"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// applyEnvOverrides applies environment variable overrides. Environment
// variables take highest priority over config file values.
//
// Priority for ai.api_key:
//  1. AI_API_KEY (generic, highest)
//  2. ANTHROPIC_API_KEY (when provider is "anthropic")
//  3. OPENAI_API_KEY (when provider is "openai")
func applyEnvOverrides(cfg *Config) {
	// Apply provider-specific env var first (lower priority).
	switch cfg.AI.Provider {
	case "anthropic":
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			cfg.AI.APIKey = v
		}
	case "openai":
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.AI.APIKey = v
		}
	case "ollama":
		if v := os.Getenv("OLLAMA_URL"); v != "" {
			cfg.AI.BaseURL = v
		}
	}

	// AI_API_KEY overrides everything (highest priority).
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}

	if v := os.Getenv("PAPERFEED_DATA_DIR"); v != "" {
		cfg.Output.Dir = v
	}
}

// validate checks that configuration values are within acceptable ranges.
func validate(cfg *Config) error {
	switch cfg.AI.Provider {
	case "ollama", "anthropic", "openai":
		// valid
	default:
		return fmt.Errorf("invalid ai.provider %q: must be \"ollama\", \"anthropic\" or \"openai\"", cfg.AI.Provider)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
	}
	if cfg.Server.ScheduleHours < 0 {
		return fmt.Errorf("invalid server.schedule_hours %d: must be >= 0", cfg.Server.ScheduleHours)
	}

	if cfg.Arxiv.Days < 1 {
		return fmt.Errorf("invalid arxiv.days %d: must be >= 1", cfg.Arxiv.Days)
	}
	if cfg.Arxiv.Limit < 1 {
		return fmt.Errorf("invalid arxiv.limit %d: must be >= 1", cfg.Arxiv.Limit)
	}

	if cfg.Ranking.FirstRoundK < 1 || cfg.Ranking.FinalRoundK < 1 {
		return fmt.Errorf("invalid ranking top-k [%d, %d]: both must be >= 1", cfg.Ranking.FirstRoundK, cfg.Ranking.FinalRoundK)
	}
	if cfg.Ranking.BatchSize < 1 {
		return fmt.Errorf("invalid ranking.batch_size %d: must be >= 1", cfg.Ranking.BatchSize)
	}
	if *cfg.Ranking.MergeThreshold < 0 {
		return fmt.Errorf("invalid ranking.merge_threshold %d: must be >= 0", *cfg.Ranking.MergeThreshold)
	}
	if cfg.Ranking.Concurrency < 1 || cfg.Classification.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency: ranking %d, classification %d: both must be >= 1",
			cfg.Ranking.Concurrency, cfg.Classification.Concurrency)
	}
	if !strings.Contains(cfg.Ranking.PromptTemplate, "{num}") {
		slog.Warn("ranking.prompt_template has no {num} placeholder: the model will not be told how many papers to pick")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q: must be debug, info, warn or error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q: must be \"text\" or \"json\"", cfg.Log.Format)
	}

	if cfg.AI.Provider != "ollama" && cfg.AI.APIKey == "" {
		slog.Warn("ai.api_key is empty: set it in the config file or via AI_API_KEY environment variable")
	}

	return nil
}
