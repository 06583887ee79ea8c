package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:8000"
	DefaultGlamourStyle   = "dark"
	DefaultRenderInterval = 50 * time.Millisecond
)

type AppConfig struct {
	BaseURL        string
	ConfigPath     string
	DBPath         string
	ExportDir      string
	LogPath        string
	LogLevel       slog.Level
	GlamourStyle   string
	RenderInterval time.Duration
	File           string
	Source         string
	ResetCatalog   bool
}

// fileConfig is the TOML layout. Empty values leave the lower layer alone.
type fileConfig struct {
	BaseURL        string `toml:"base_url"`
	DBPath         string `toml:"db_path"`
	ExportDir      string `toml:"export_dir"`
	LogFile        string `toml:"log_file"`
	LogLevel       string `toml:"log_level"`
	GlamourStyle   string `toml:"glamour_style"`
	RenderInterval string `toml:"render_interval"`
}

// Parse reads .env (if present), then resolves the configuration from
// defaults, the TOML file, the environment and the command line, in that
// order of increasing precedence.
func Parse() (AppConfig, error) {
	_ = godotenv.Load()
	cfg, err := ParseArgs(os.Args[1:], os.Getenv)
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return cfg, fmt.Errorf("create db dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return cfg, fmt.Errorf("create log dir: %w", err)
	}
	return cfg, nil
}

func ParseArgs(args []string, getenv func(string) string) (AppConfig, error) {
	var cfg AppConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("resolve home directory: %w", err)
	}
	dataDir := filepath.Join(home, ".local", "share", "pdfchat")

	cfg = AppConfig{
		BaseURL:        DefaultBaseURL,
		ConfigPath:     filepath.Join(home, ".config", "pdfchat", "config.toml"),
		DBPath:         filepath.Join(dataDir, "catalog.sqlite"),
		LogPath:        filepath.Join(dataDir, "pdfchat.log"),
		LogLevel:       slog.LevelInfo,
		GlamourStyle:   DefaultGlamourStyle,
		RenderInterval: DefaultRenderInterval,
	}

	fs := flag.NewFlagSet("pdfchat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		baseURL        = fs.String("base-url", "", "retrieval service base URL")
		configPath     = fs.String("config", "", "path to TOML config file")
		dbPath         = fs.String("db-path", "", "path to SQLite document catalog")
		exportDir      = fs.String("export-dir", "", "directory for transcript exports")
		logFile        = fs.String("log-file", "", "path to log file")
		logLevel       = fs.String("log-level", "", "log level (debug, info, warn, error)")
		style          = fs.String("style", "", "glamour style for answers")
		renderInterval = fs.Duration("render-interval", 0, "minimum time between transcript redraws")
		file           = fs.String("file", "", "PDF to preselect for upload")
		source         = fs.String("source", "", "restrict answers to one uploaded document")
		reset          = fs.Bool("reset-catalog", false, "forget previously uploaded documents")
	)
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("parse flags: %w", err)
	}

	cfg.ConfigPath = firstNonEmpty(*configPath, getenv("PDFCHAT_CONFIG"), cfg.ConfigPath)
	if err := cfg.applyFile(cfg.ConfigPath); err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}

	cfg.BaseURL = firstNonEmpty(*baseURL, cfg.BaseURL)
	cfg.DBPath = firstNonEmpty(*dbPath, cfg.DBPath)
	cfg.ExportDir = firstNonEmpty(*exportDir, cfg.ExportDir)
	cfg.LogPath = firstNonEmpty(*logFile, cfg.LogPath)
	cfg.GlamourStyle = firstNonEmpty(*style, cfg.GlamourStyle)
	if *logLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(*logLevel)); err != nil {
			return cfg, fmt.Errorf("parse log level %q: %w", *logLevel, err)
		}
	}
	if *renderInterval > 0 {
		cfg.RenderInterval = *renderInterval
	}
	if *file != "" {
		cfg.File = filepath.Clean(*file)
	}
	cfg.Source = strings.TrimSpace(*source)
	cfg.ResetCatalog = *reset

	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.LogPath = expandHome(cfg.LogPath, home)
	cfg.ExportDir = expandHome(cfg.ExportDir, home)

	if err := ValidateBaseURL(cfg.BaseURL); err != nil {
		return cfg, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	c.BaseURL = firstNonEmpty(fc.BaseURL, c.BaseURL)
	c.DBPath = firstNonEmpty(fc.DBPath, c.DBPath)
	c.ExportDir = firstNonEmpty(fc.ExportDir, c.ExportDir)
	c.LogPath = firstNonEmpty(fc.LogFile, c.LogPath)
	c.GlamourStyle = firstNonEmpty(fc.GlamourStyle, c.GlamourStyle)
	if fc.LogLevel != "" {
		if err := c.LogLevel.UnmarshalText([]byte(fc.LogLevel)); err != nil {
			return fmt.Errorf("config %s: log_level: %w", path, err)
		}
	}
	if fc.RenderInterval != "" {
		d, err := time.ParseDuration(fc.RenderInterval)
		if err != nil {
			return fmt.Errorf("config %s: render_interval: %w", path, err)
		}
		c.RenderInterval = d
	}
	return nil
}

func (c *AppConfig) applyEnv(getenv func(string) string) error {
	c.BaseURL = firstNonEmpty(getenv("PDFCHAT_BASE_URL"), c.BaseURL)
	c.DBPath = firstNonEmpty(getenv("PDFCHAT_DB_PATH"), c.DBPath)
	c.ExportDir = firstNonEmpty(getenv("PDFCHAT_EXPORT_DIR"), c.ExportDir)
	c.LogPath = firstNonEmpty(getenv("PDFCHAT_LOG_FILE"), c.LogPath)
	c.GlamourStyle = firstNonEmpty(getenv("PDFCHAT_STYLE"), c.GlamourStyle)
	if lvl := getenv("PDFCHAT_LOG_LEVEL"); lvl != "" {
		if err := c.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return fmt.Errorf("PDFCHAT_LOG_LEVEL: %w", err)
		}
	}
	return nil
}

func ValidateBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid base url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base url %q: want http(s)://host[:port]", raw)
	}
	return nil
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
