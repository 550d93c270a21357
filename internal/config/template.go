package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

func GenerateTemplateConfig(writeToFile bool) (Config, error) {
	cfg := Config{
		ServerMode:  "HTTP",
		BindAddress: "127.0.0.1",
		Port:        8080,

		LogLevel: "info",

		RewriteMode: RewriteModeGlobal,

		Rewrite: RewriteOptions{
			MinImageSizeLowResolutionBytes: 1024,
			MaxImageSizeLowResolutionBytes: 0,
			MaxInlinedPreviewImagesIndex:   -1,

			EnableAggressiveRewritersForMobile:    false,
			EnableInlinePreviewImagesExperimental: false,
			LazyloadHighResImages:                 false,
			ImagePreserveURLs:                     false,
			ResizeMobileImages:                    false,

			DeferJavascript: false,
			LazyloadImages:  true,

			Debug: false,
		},

		API: APIOptions{
			Enabled:     false,
			BindAddress: "127.0.0.1",
			Port:        8061,
		},
	}

	if writeToFile {
		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to marshal template config to YAML: %w", err)
		}
		if err := os.WriteFile("config.yaml", data, 0644); err != nil {
			return Config{}, fmt.Errorf("failed to write template config to file: %w", err)
		}
	}
	return cfg, nil
}
