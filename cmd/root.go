package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pageboost/pageboost/internal/api"
	"github.com/pageboost/pageboost/internal/config"
	"github.com/pageboost/pageboost/internal/daemon"
	"github.com/pageboost/pageboost/internal/log"
	"github.com/pageboost/pageboost/internal/preview"
	"github.com/pageboost/pageboost/internal/rewrite"
	"github.com/pageboost/pageboost/internal/rule"
	"github.com/pageboost/pageboost/internal/server"
	"github.com/pageboost/pageboost/internal/stats"
)

var (
	AppVersion    = "Development"
	shutdownChain []func() error
)

var rootCmd = &cobra.Command{
	Use:   "pageboost",
	Short: "pageboost is an HTML rewriting proxy",
	Long: "pageboost is an HTML rewriting proxy that inlines low resolution image previews " +
		"into pages as they stream by and swaps the originals back in after load.",
	RunE: runRoot,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Short flags
	rootCmd.Flags().StringP("config", "c", "", "Config file path")
	rootCmd.Flags().StringP("mode", "m", "", "Server mode: HTTP")
	rootCmd.Flags().StringP("bind", "b", "", "Bind address")
	rootCmd.Flags().IntP("port", "p", 0, "Port")
	rootCmd.Flags().StringP("log-level", "l", "", "Log level")
	rootCmd.Flags().StringP("rewrite-mode", "x", "", "Rewrite mode: GLOBAL, DIRECT, RULES")
	rootCmd.Flags().StringP("rules", "z", "", "Rules JSON string")
	rootCmd.Flags().BoolP("version", "v", false, "Show version")
	rootCmd.Flags().BoolP("generate-config", "g", false, "Generate template config file")

	// Long flags
	rootCmd.Flags().Int64("min-image-size", 0, "Minimum source image size eligible for previews (bytes)")
	rootCmd.Flags().Int64("max-image-size", 0, "Maximum source image size eligible for previews (bytes, 0 = unlimited)")
	rootCmd.Flags().Int("max-inlined-previews", 0, "Maximum previews inlined per page (-1 = unlimited)")
	rootCmd.Flags().Bool("mobile-aggressive", false, "Enable aggressive rewriters for mobile agents")
	rootCmd.Flags().Bool("inline-preview-experimental", false, "Enable the onload based inline preview variant")
	rootCmd.Flags().Bool("lazyload-highres", false, "Defer the high resolution swap until first interaction on mobile")
	rootCmd.Flags().Bool("preserve-image-urls", false, "Disable image rewriting entirely")
	rootCmd.Flags().Bool("resize-mobile-images", false, "Downscale previews for small screens")
	rootCmd.Flags().Bool("defer-javascript", false, "Defer script execution until after load")
	rootCmd.Flags().Bool("lazyload-images", false, "Lazy load images the previews skip")
	rootCmd.Flags().Bool("debug", false, "Serve readable variants of the injected scripts")
	rootCmd.Flags().Bool("api", false, "Enable the management API server")
	rootCmd.Flags().String("api-bind", "", "Management API bind address")
	rootCmd.Flags().Int("api-port", 0, "Management API port")
	rootCmd.Flags().String("api-secret", "", "Management API bearer secret")

	// Bind all flags to viper using consistent key names
	_ = viper.BindPFlag("config", rootCmd.Flags().Lookup("config"))
	_ = viper.BindPFlag("server-mode", rootCmd.Flags().Lookup("mode"))
	_ = viper.BindPFlag("bind-address", rootCmd.Flags().Lookup("bind"))
	_ = viper.BindPFlag("port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("log-level", rootCmd.Flags().Lookup("log-level"))
	_ = viper.BindPFlag("rewrite-mode", rootCmd.Flags().Lookup("rewrite-mode"))
	_ = viper.BindPFlag("rules-json", rootCmd.Flags().Lookup("rules"))
	_ = viper.BindPFlag("api.enabled", rootCmd.Flags().Lookup("api"))
	_ = viper.BindPFlag("api.bind-address", rootCmd.Flags().Lookup("api-bind"))
	_ = viper.BindPFlag("api.port", rootCmd.Flags().Lookup("api-port"))
	_ = viper.BindPFlag("api.secret", rootCmd.Flags().Lookup("api-secret"))
	_ = viper.BindPFlag("rewrite.min-image-size-low-resolution-bytes", rootCmd.Flags().Lookup("min-image-size"))
	_ = viper.BindPFlag("rewrite.max-image-size-low-resolution-bytes", rootCmd.Flags().Lookup("max-image-size"))
	_ = viper.BindPFlag("rewrite.max-inlined-preview-images-index", rootCmd.Flags().Lookup("max-inlined-previews"))
	_ = viper.BindPFlag("rewrite.enable-aggressive-rewriters-for-mobile", rootCmd.Flags().Lookup("mobile-aggressive"))
	_ = viper.BindPFlag("rewrite.enable-inline-preview-images-experimental", rootCmd.Flags().Lookup("inline-preview-experimental"))
	_ = viper.BindPFlag("rewrite.lazyload-highres-images", rootCmd.Flags().Lookup("lazyload-highres"))
	_ = viper.BindPFlag("rewrite.image-preserve-urls", rootCmd.Flags().Lookup("preserve-image-urls"))
	_ = viper.BindPFlag("rewrite.resize-mobile-images", rootCmd.Flags().Lookup("resize-mobile-images"))
	_ = viper.BindPFlag("rewrite.defer-javascript", rootCmd.Flags().Lookup("defer-javascript"))
	_ = viper.BindPFlag("rewrite.lazyload-images", rootCmd.Flags().Lookup("lazyload-images"))
	_ = viper.BindPFlag("rewrite.debug", rootCmd.Flags().Lookup("debug"))

	// Bind environment variables
	viper.SetEnvPrefix("PAGEBOOST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("server-mode", "PAGEBOOST_SERVER_MODE")
	_ = viper.BindEnv("bind-address", "PAGEBOOST_BIND_ADDRESS")
	_ = viper.BindEnv("port", "PAGEBOOST_PORT")
	_ = viper.BindEnv("log-level", "PAGEBOOST_LOG_LEVEL")
	_ = viper.BindEnv("rewrite-mode", "PAGEBOOST_REWRITE_MODE")
	_ = viper.BindEnv("rules-json", "PAGEBOOST_RULES_JSON")
	_ = viper.BindEnv("api.enabled", "PAGEBOOST_API_ENABLED")
	_ = viper.BindEnv("api.bind-address", "PAGEBOOST_API_BIND_ADDRESS")
	_ = viper.BindEnv("api.port", "PAGEBOOST_API_PORT")
	_ = viper.BindEnv("api.secret", "PAGEBOOST_API_SECRET")
	_ = viper.BindEnv("rewrite.min-image-size-low-resolution-bytes", "PAGEBOOST_MIN_IMAGE_SIZE")
	_ = viper.BindEnv("rewrite.max-image-size-low-resolution-bytes", "PAGEBOOST_MAX_IMAGE_SIZE")
	_ = viper.BindEnv("rewrite.max-inlined-preview-images-index", "PAGEBOOST_MAX_INLINED_PREVIEWS")
	_ = viper.BindEnv("rewrite.enable-aggressive-rewriters-for-mobile", "PAGEBOOST_MOBILE_AGGRESSIVE")
	_ = viper.BindEnv("rewrite.enable-inline-preview-images-experimental", "PAGEBOOST_INLINE_PREVIEW_EXPERIMENTAL")
	_ = viper.BindEnv("rewrite.lazyload-highres-images", "PAGEBOOST_LAZYLOAD_HIGHRES")
	_ = viper.BindEnv("rewrite.image-preserve-urls", "PAGEBOOST_PRESERVE_IMAGE_URLS")
	_ = viper.BindEnv("rewrite.resize-mobile-images", "PAGEBOOST_RESIZE_MOBILE_IMAGES")
	_ = viper.BindEnv("rewrite.defer-javascript", "PAGEBOOST_DEFER_JAVASCRIPT")
	_ = viper.BindEnv("rewrite.lazyload-images", "PAGEBOOST_LAZYLOAD_IMAGES")
	_ = viper.BindEnv("rewrite.debug", "PAGEBOOST_DEBUG")
}

func initConfig() {
	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.MergeInConfig(); err != nil {
			slog.Error("Failed to read config file", slog.Any("error", err))
			os.Exit(1)
		}
	}

	defaults := config.DefaultRewriteOptions()
	viper.SetDefault("server-mode", "HTTP")
	viper.SetDefault("bind-address", "127.0.0.1")
	viper.SetDefault("port", 8050)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("rewrite-mode", string(config.RewriteModeGlobal))
	viper.SetDefault("api.port", 8061)
	viper.SetDefault("rewrite.min-image-size-low-resolution-bytes", defaults.MinImageSizeLowResolutionBytes)
	viper.SetDefault("rewrite.max-image-size-low-resolution-bytes", defaults.MaxImageSizeLowResolutionBytes)
	viper.SetDefault("rewrite.max-inlined-preview-images-index", defaults.MaxInlinedPreviewImagesIndex)
}

func runRoot(cmd *cobra.Command, args []string) error {
	// Handle -v / --version
	showVer, _ := cmd.Flags().GetBool("version")
	if showVer {
		fmt.Printf("pageboost version %s\n", AppVersion)
		return nil
	}

	// Handle -g / --generate-config
	genConfig, _ := cmd.Flags().GetBool("generate-config")
	if genConfig {
		_, err := config.GenerateTemplateConfig(true)
		if err != nil {
			return fmt.Errorf("failed to generate template config: %w", err)
		}
		fmt.Println("Template config file 'config.yaml' generated successfully.")
		return nil
	}

	cfg, err := config.BuildConfigFromViper()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logBroadcaster := log.NewBroadcaster()
	log.SetLogConf(cfg.LogLevel, logBroadcaster)
	log.LogHeader(AppVersion, cfg)

	if err := daemon.DaemonSetup(cfg); err != nil {
		slog.Error("daemon.DaemonSetup", slog.Any("error", err))
		return err
	}

	docStats := stats.NewDocumentRecordList(log.GetStatsFilePath("pageboost.stat"))
	docStats.Run()

	engine, err := rule.NewEngine(viper.GetString("rules-json"), cfg.Rules)
	if err != nil {
		slog.Error("rule.NewEngine", slog.Any("error", err))
		return err
	}

	fetcher := preview.NewHTTPFetcher(10 * time.Second)
	rw := rewrite.New(cfg.Rewrite, fetcher)

	srv, err := server.NewServer(cfg, rw, engine, docStats)
	if err != nil {
		slog.Error("server.NewServer", slog.Any("error", err))
		return err
	}
	addShutdown("srv.Close", srv.Close)
	if err := srv.Start(); err != nil {
		slog.Error("srv.Start", slog.Any("error", err))
		shutdown()
		return err
	}

	if apiAddr := cfg.APIListenAddr(); apiAddr != "" {
		apiSrv := api.New(apiAddr, AppVersion, cfg, engine, docStats, logBroadcaster)
		addShutdown("apiSrv.Close", apiSrv.Close)
		if err := apiSrv.Start(); err != nil {
			slog.Error("apiSrv.Start", slog.Any("error", err))
			shutdown()
			return err
		}
	}

	cleanup := make(chan os.Signal, 1)
	signal.Notify(cleanup, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM)
	for {
		s := <-cleanup
		slog.Info("Received signal", slog.String("signal", s.String()))
		switch s {
		case syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM:
			shutdown()
			return nil
		case syscall.SIGHUP:
		default:
			return nil
		}
	}
}

func addShutdown(name string, fn func() error) {
	shutdownChain = append(shutdownChain, func() error {
		if err := fn(); err != nil {
			slog.Error(name, slog.Any("error", err))
			return err
		}
		return nil
	})
}

func shutdown() {
	for i := len(shutdownChain) - 1; i >= 0; i-- {
		_ = shutdownChain[i]()
	}
	slog.Info("pageboost exit")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
