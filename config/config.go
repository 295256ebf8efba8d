// Package config builds the service configuration once at startup from
// defaults, an optional YAML file and the process environment.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

const defaultAddr = ":8080"

// Rembg backends.
const (
	BackendLocal     = "local"
	BackendContainer = "container"
)

// Config is passed by pointer to every component that needs settings.
// Nothing reads the environment after Load returns.
type Config struct {
	Addr string

	UploadDir string
	OutputDir string

	// CleanupMaxAge is the age after which staged files are swept.
	CleanupMaxAge time.Duration

	MaxTextLength         int
	MaxDocumentTextLength int
	MaxUploadBytes        int64

	// TTSTLD selects the regional speech endpoint (translate.google.<tld>).
	TTSTLD           string
	MinAudioDuration time.Duration

	RembgModel   string
	RembgBackend string
	RembgImage   string

	Workers         int
	PageRangeStrict bool

	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string

	// TrustProxy takes the client address from X-Forwarded-For/X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool

	// ArchiveBucket enables mirroring of artifacts to GCS when non-empty.
	ArchiveBucket string

	SofficePath  string
	PdftoppmPath string
	FFmpegPath   string
	RembgPath    string

	LogLevel string
}

// SetDefaults registers every key with its default so that environment
// variables of the same (upper-cased) name override them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", defaultAddr)
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("output_dir", "generated")
	v.SetDefault("cleanup_max_age_seconds", 3600)
	v.SetDefault("max_text_length", 5000)
	v.SetDefault("max_document_text_length", 100000)
	v.SetDefault("max_upload_mb", 100)
	v.SetDefault("tts_tld", "com")
	v.SetDefault("min_audio_duration_seconds", 0.3)
	v.SetDefault("rembg_model", "u2net")
	v.SetDefault("rembg_backend", BackendLocal)
	v.SetDefault("rembg_image", "danielgatis/rembg:latest")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("page_range_strict", false)
	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("cors_origins", "*")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("archive_bucket", "")
	v.SetDefault("soffice_path", "")
	v.SetDefault("pdftoppm_path", "")
	v.SetDefault("ffmpeg_path", "")
	v.SetDefault("rembg_path", "")
	v.SetDefault("log_level", "info")
}

// Load reads the configuration out of v. Environment variables use the
// key names upper-cased (MAX_TEXT_LENGTH, CLEANUP_MAX_AGE_SECONDS, ...).
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Addr:                  v.GetString("addr"),
		UploadDir:             v.GetString("upload_dir"),
		OutputDir:             v.GetString("output_dir"),
		CleanupMaxAge:         time.Duration(v.GetInt64("cleanup_max_age_seconds")) * time.Second,
		MaxTextLength:         v.GetInt("max_text_length"),
		MaxDocumentTextLength: v.GetInt("max_document_text_length"),
		MaxUploadBytes:        v.GetInt64("max_upload_mb") * 1024 * 1024,
		TTSTLD:                strings.TrimPrefix(strings.TrimSpace(v.GetString("tts_tld")), "."),
		MinAudioDuration:      time.Duration(v.GetFloat64("min_audio_duration_seconds") * float64(time.Second)),
		RembgModel:            v.GetString("rembg_model"),
		RembgBackend:          strings.ToLower(v.GetString("rembg_backend")),
		RembgImage:            v.GetString("rembg_image"),
		Workers:               v.GetInt("workers"),
		PageRangeStrict:       v.GetBool("page_range_strict"),
		RateLimitRPS:          v.GetFloat64("rate_limit_rps"),
		RateLimitBurst:        v.GetInt("rate_limit_burst"),
		CORSOrigins:           splitList(v.GetString("cors_origins")),
		TrustProxy:            v.GetBool("trust_proxy"),
		ArchiveBucket:         v.GetString("archive_bucket"),
		SofficePath:           v.GetString("soffice_path"),
		PdftoppmPath:          v.GetString("pdftoppm_path"),
		FFmpegPath:            v.GetString("ffmpeg_path"),
		RembgPath:             v.GetString("rembg_path"),
		LogLevel:              v.GetString("log_level"),
	}

	// PORT is what most hosting platforms export; an explicit addr wins.
	if port := v.GetString("port"); port != "" && cfg.Addr == defaultAddr {
		cfg.Addr = ":" + port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that limits are positive and enumerations are known.
func (c *Config) Validate() error {
	if c.UploadDir == "" {
		return fmt.Errorf("upload_dir is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.CleanupMaxAge <= 0 {
		return fmt.Errorf("cleanup_max_age_seconds must be > 0")
	}
	if c.MaxTextLength <= 0 {
		return fmt.Errorf("max_text_length must be > 0")
	}
	if c.MaxDocumentTextLength <= 0 {
		return fmt.Errorf("max_document_text_length must be > 0")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	if c.MinAudioDuration < 0 {
		return fmt.Errorf("min_audio_duration_seconds must be >= 0")
	}
	if c.TTSTLD == "" {
		return fmt.Errorf("tts_tld is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits must be >= 0")
	}
	switch c.RembgBackend {
	case BackendLocal, BackendContainer:
	default:
		return fmt.Errorf("unsupported rembg_backend %q (use %s or %s)", c.RembgBackend, BackendLocal, BackendContainer)
	}
	return nil
}

// fileConfig is the on-disk shape: the keys and units Load reads.
type fileConfig struct {
	Addr                    string  `yaml:"addr"`
	UploadDir               string  `yaml:"upload_dir"`
	OutputDir               string  `yaml:"output_dir"`
	CleanupMaxAgeSeconds    int64   `yaml:"cleanup_max_age_seconds"`
	MaxTextLength           int     `yaml:"max_text_length"`
	MaxDocumentTextLength   int     `yaml:"max_document_text_length"`
	MaxUploadMB             int64   `yaml:"max_upload_mb"`
	TTSTLD                  string  `yaml:"tts_tld"`
	MinAudioDurationSeconds float64 `yaml:"min_audio_duration_seconds"`
	RembgModel              string  `yaml:"rembg_model"`
	RembgBackend            string  `yaml:"rembg_backend"`
	RembgImage              string  `yaml:"rembg_image"`
	Workers                 int     `yaml:"workers"`
	PageRangeStrict         bool    `yaml:"page_range_strict"`
	RateLimitRPS            float64 `yaml:"rate_limit_rps"`
	RateLimitBurst          int     `yaml:"rate_limit_burst"`
	CORSOrigins             string  `yaml:"cors_origins"`
	TrustProxy              bool    `yaml:"trust_proxy"`
	ArchiveBucket           string  `yaml:"archive_bucket,omitempty"`
	SofficePath             string  `yaml:"soffice_path,omitempty"`
	PdftoppmPath            string  `yaml:"pdftoppm_path,omitempty"`
	FFmpegPath              string  `yaml:"ffmpeg_path,omitempty"`
	RembgPath               string  `yaml:"rembg_path,omitempty"`
	LogLevel                string  `yaml:"log_level"`
}

// YAML renders the effective configuration in the form Load reads back,
// so the output can be saved as media-converter.yaml.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(fileConfig{
		Addr:                    c.Addr,
		UploadDir:               c.UploadDir,
		OutputDir:               c.OutputDir,
		CleanupMaxAgeSeconds:    int64(c.CleanupMaxAge / time.Second),
		MaxTextLength:           c.MaxTextLength,
		MaxDocumentTextLength:   c.MaxDocumentTextLength,
		MaxUploadMB:             c.MaxUploadBytes >> 20,
		TTSTLD:                  c.TTSTLD,
		MinAudioDurationSeconds: c.MinAudioDuration.Seconds(),
		RembgModel:              c.RembgModel,
		RembgBackend:            c.RembgBackend,
		RembgImage:              c.RembgImage,
		Workers:                 c.Workers,
		PageRangeStrict:         c.PageRangeStrict,
		RateLimitRPS:            c.RateLimitRPS,
		RateLimitBurst:          c.RateLimitBurst,
		CORSOrigins:             strings.Join(c.CORSOrigins, ","),
		TrustProxy:              c.TrustProxy,
		ArchiveBucket:           c.ArchiveBucket,
		SofficePath:             c.SofficePath,
		PdftoppmPath:            c.PdftoppmPath,
		FFmpegPath:              c.FFmpegPath,
		RembgPath:               c.RembgPath,
		LogLevel:                c.LogLevel,
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
