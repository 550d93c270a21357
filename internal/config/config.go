package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type ServerMode string

const (
	ServerModeHTTP ServerMode = "HTTP"
)

type RewriteMode string

const (
	// RewriteModeGlobal rewrites every HTML document that passes through.
	RewriteModeGlobal RewriteMode = "GLOBAL"
	// RewriteModeDirect forwards everything untouched.
	RewriteModeDirect RewriteMode = "DIRECT"
	// RewriteModeRules consults the rule set per request.
	RewriteModeRules RewriteMode = "RULES"
)

// RewriteOptions controls the delay-images rewriter for one server instance.
// All options are read-only during a document pass.
type RewriteOptions struct {
	MinImageSizeLowResolutionBytes int64 `yaml:"min-image-size-low-resolution-bytes" validate:"gte=0"`
	MaxImageSizeLowResolutionBytes int64 `yaml:"max-image-size-low-resolution-bytes" validate:"gte=0"`
	MaxInlinedPreviewImagesIndex   int   `yaml:"max-inlined-preview-images-index" validate:"gte=-1"`

	EnableAggressiveRewritersForMobile    bool `yaml:"enable-aggressive-rewriters-for-mobile"`
	EnableInlinePreviewImagesExperimental bool `yaml:"enable-inline-preview-images-experimental"`
	LazyloadHighResImages                 bool `yaml:"lazyload-highres-images"`
	ImagePreserveURLs                     bool `yaml:"image-preserve-urls"`
	ResizeMobileImages                    bool `yaml:"resize-mobile-images"`

	// Cooperating filters.
	DeferJavascript bool `yaml:"defer-javascript"`
	LazyloadImages  bool `yaml:"lazyload-images"`

	// Debug selects the commented variants of the injected runtime scripts.
	Debug bool `yaml:"debug"`
}

// Rule selects requests the rewriter should act on or skip. Rules are
// evaluated in order; the first match wins.
type Rule struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	Type string `json:"type" yaml:"type" mapstructure:"type" validate:"required,oneof=DOMAIN DOMAIN-SUFFIX DOMAIN-KEYWORD URL-REGEX IP-CIDR SRC-IP DEST-PORT FINAL"`

	MatchValue string `json:"match_value,omitempty" yaml:"match-value,omitempty" mapstructure:"match-value" validate:"required_unless=Type FINAL"`

	Action string `json:"action" yaml:"action" mapstructure:"action" validate:"required,oneof=REWRITE BYPASS"`
}

// APIOptions configures the management API server. A zero Port leaves the
// API disabled.
type APIOptions struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bind-address"`
	Port        int    `yaml:"port" validate:"gte=0,lte=65535"`
	Secret      string `yaml:"secret"`
}

type Config struct {
	ServerMode  ServerMode `yaml:"server-mode" validate:"required,oneof=HTTP"`
	BindAddress string     `yaml:"bind-address" validate:"required"`
	Port        int        `yaml:"port" validate:"gt=0,lte=65535"`
	LogLevel    string     `yaml:"log-level" validate:"oneof=debug info warn error"`

	RewriteMode RewriteMode `yaml:"rewrite-mode" validate:"omitempty,oneof=GLOBAL DIRECT RULES"`
	Rules       []Rule      `yaml:"rules,omitempty" validate:"dive"`

	Rewrite RewriteOptions `yaml:"rewrite"`
	API     APIOptions     `yaml:"api"`
}

// DefaultRewriteOptions returns the stock thresholds: previews for sources
// of at least 1 KiB, no upper source bound, unlimited inline cap.
func DefaultRewriteOptions() RewriteOptions {
	return RewriteOptions{
		MinImageSizeLowResolutionBytes: 1 * 1024,
		MaxImageSizeLowResolutionBytes: 0,
		MaxInlinedPreviewImagesIndex:   -1,
	}
}

// BuildConfigFromViper assembles a Config from the already-initialized viper
// instance (flags, env and config file merged by cmd) and validates it.
func BuildConfigFromViper() (*Config, error) {
	cfg := &Config{
		ServerMode:  ServerMode(viper.GetString("server-mode")),
		BindAddress: viper.GetString("bind-address"),
		Port:        viper.GetInt("port"),
		LogLevel:    viper.GetString("log-level"),
		RewriteMode: RewriteMode(viper.GetString("rewrite-mode")),
		API: APIOptions{
			Enabled:     viper.GetBool("api.enabled"),
			BindAddress: viper.GetString("api.bind-address"),
			Port:        viper.GetInt("api.port"),
			Secret:      viper.GetString("api.secret"),
		},
		Rewrite: RewriteOptions{
			MinImageSizeLowResolutionBytes:        viper.GetInt64("rewrite.min-image-size-low-resolution-bytes"),
			MaxImageSizeLowResolutionBytes:        viper.GetInt64("rewrite.max-image-size-low-resolution-bytes"),
			MaxInlinedPreviewImagesIndex:          viper.GetInt("rewrite.max-inlined-preview-images-index"),
			EnableAggressiveRewritersForMobile:    viper.GetBool("rewrite.enable-aggressive-rewriters-for-mobile"),
			EnableInlinePreviewImagesExperimental: viper.GetBool("rewrite.enable-inline-preview-images-experimental"),
			LazyloadHighResImages:                 viper.GetBool("rewrite.lazyload-highres-images"),
			ImagePreserveURLs:                     viper.GetBool("rewrite.image-preserve-urls"),
			ResizeMobileImages:                    viper.GetBool("rewrite.resize-mobile-images"),
			DeferJavascript:                       viper.GetBool("rewrite.defer-javascript"),
			LazyloadImages:                        viper.GetBool("rewrite.lazyload-images"),
			Debug:                                 viper.GetBool("rewrite.debug"),
		},
	}
	if err := viper.UnmarshalKey("rules", &cfg.Rules); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// APIListenAddr returns the management API listen address, or "" when the
// API is disabled.
func (c *Config) APIListenAddr() string {
	if !c.API.Enabled || c.API.Port == 0 {
		return ""
	}
	host := c.API.BindAddress
	if host == "" {
		host = c.BindAddress
	}
	return net.JoinHostPort(host, strconv.Itoa(c.API.Port))
}

func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("Log Level", c.LogLevel),
		slog.String("Server Mode", string(c.ServerMode)),
		slog.String("Listen Address", c.ListenAddr()),
		slog.String("Rewrite Mode", string(c.RewriteMode)),
		slog.Int("Rules", len(c.Rules)),
		slog.Any("Rewrite", c.Rewrite),
	)
}

func (o RewriteOptions) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("Min Image Size Low Resolution Bytes", o.MinImageSizeLowResolutionBytes),
		slog.Int64("Max Image Size Low Resolution Bytes", o.MaxImageSizeLowResolutionBytes),
		slog.Int("Max Inlined Preview Images Index", o.MaxInlinedPreviewImagesIndex),
		slog.Bool("Aggressive Rewriters For Mobile", o.EnableAggressiveRewritersForMobile),
		slog.Bool("Inline Preview Images Experimental", o.EnableInlinePreviewImagesExperimental),
		slog.Bool("Lazyload High Res Images", o.LazyloadHighResImages),
		slog.Bool("Image Preserve URLs", o.ImagePreserveURLs),
		slog.Bool("Resize Mobile Images", o.ResizeMobileImages),
		slog.Bool("Defer Javascript", o.DeferJavascript),
		slog.Bool("Lazyload Images", o.LazyloadImages),
		slog.Bool("Debug", o.Debug),
	)
}
