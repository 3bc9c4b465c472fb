package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"docconvert/internal/domain"
)

// Supported rendering engines.
const (
	EngineChromedp  = "chromedp"
	EngineRod       = "rod"
	EngineGotenberg = "gotenberg"
)

// PaperSize is a named paper format in inches.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Profile is a deployment page layout. One profile is active per deployment.
type Profile struct {
	Paper             string  `yaml:"paper"`
	Landscape         bool    `yaml:"landscape"`
	MarginTop         float64 `yaml:"margin_top"`
	MarginBottom      float64 `yaml:"margin_bottom"`
	MarginLeft        float64 `yaml:"margin_left"`
	MarginRight       float64 `yaml:"margin_right"`
	PreferCSSPageSize bool    `yaml:"prefer_css_page_size"`
	HeaderFooter      bool    `yaml:"header_footer"`
	PrintBackground   bool    `yaml:"print_background"`
}

// PostgresConfig locates the API token database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Enabled reports whether a token database is configured.
func (p PostgresConfig) Enabled() bool { return p.Host != "" }

// Config is the complete service configuration.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Limits struct {
		MaxHTMLBytes   int `yaml:"max_html_bytes"`
		MaxPDFBytes    int `yaml:"max_pdf_bytes"`
		MaxSourceBytes int `yaml:"max_source_bytes"`
		MaxAssetBytes  int `yaml:"max_asset_bytes"`
	} `yaml:"limits"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
		RedisHost       string        `yaml:"redis_host"`
		RateLimitDB     int           `yaml:"redis_rate_db"`
		PDFCacheDB      int           `yaml:"redis_pdf_db"`
	} `yaml:"cache"`

	PDF struct {
		Engine             string               `yaml:"engine"`
		DefaultPaper       string               `yaml:"default_paper"`
		PaperSizes         map[string]PaperSize `yaml:"paper_sizes"`
		Profile            string               `yaml:"profile"`
		Profiles           map[string]Profile   `yaml:"profiles"`
		TimeoutSecs        int                  `yaml:"timeout_secs"`
		RequestTimeoutSecs int                  `yaml:"request_timeout_secs"`
		NetworkIdleMS      int                  `yaml:"network_idle_ms"`
		AcquireTimeout     time.Duration        `yaml:"acquire_timeout"`
		MaxSessions        int                  `yaml:"max_sessions"`
		ChromePath         string               `yaml:"chrome_path"`
		ChromeNoSandbox    bool                 `yaml:"chrome_no_sandbox"`
		ChromeFlags        map[string]string    `yaml:"chrome_flags"`
		UserDataDir        string               `yaml:"user_data_dir"`
		GotenbergURL       string               `yaml:"gotenberg_url"`
	} `yaml:"pdf"`

	Furniture struct {
		HeaderLogoURL string        `yaml:"header_logo_url"`
		HeaderText    string        `yaml:"header_text"`
		FooterText    string        `yaml:"footer_text"`
		PageNumbers   bool          `yaml:"page_numbers"`
		LogoHeightPx  int           `yaml:"logo_height_px"`
		FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	} `yaml:"furniture"`

	Source struct {
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
	} `yaml:"source"`

	Extract struct {
		Workers    int           `yaml:"workers"`
		Timeout    time.Duration `yaml:"timeout"`
		StagingDir string        `yaml:"staging_dir"`
	} `yaml:"extract"`

	Storage struct {
		BaseURL       string        `yaml:"base_url"`
		PDFDir        string        `yaml:"pdf_dir"`
		WordDir       string        `yaml:"word_dir"`
		Retention     time.Duration `yaml:"retention"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		LockTTL       time.Duration `yaml:"lock_ttl"`
		LockDB        int           `yaml:"redis_lock_db"`
	} `yaml:"storage"`

	Fonts struct {
		Dirs       []string `yaml:"dirs"`
		InstallDir string   `yaml:"install_dir"`
		RunFCCache bool     `yaml:"run_fc_cache"`
	} `yaml:"fonts"`

	Auth struct {
		Required       bool           `yaml:"required"`
		Postgres       PostgresConfig `yaml:"postgres"`
		ReloadInterval time.Duration  `yaml:"reload_interval"`
	} `yaml:"auth"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
		UserLimit         int           `yaml:"user_limit"`
	} `yaml:"rate_limiter"`
}

// Load reads the file named by CONFIG_PATH (default config.yaml).
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFrom(path)
}

// LoadFrom reads, defaults and validates the configuration at path. It panics
// on unreadable or invalid configuration; the service must not start half
// configured.
func LoadFrom(path string) Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}

	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.Storage.BaseURL = v
	}
	// Common container env var for the browser binary.
	if cfg.PDF.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.PDF.ChromePath = v
		}
	}
	if v := os.Getenv("GOTENBERG_URL"); v != "" {
		cfg.PDF.GotenbergURL = v
	}
	if v := os.Getenv("PDF_OUTPUT_DIR"); v != "" {
		cfg.Storage.PDFDir = v
	}
	if v := os.Getenv("WORD_OUTPUT_DIR"); v != "" {
		cfg.Storage.WordDir = v
	}
}

// ApplyDefaults fills every zero value that has a sensible default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.Limits.MaxHTMLBytes <= 0 {
		cfg.Limits.MaxHTMLBytes = 5 << 20
	}
	if cfg.Limits.MaxPDFBytes <= 0 {
		cfg.Limits.MaxPDFBytes = 50 << 20
	}
	if cfg.Limits.MaxSourceBytes <= 0 {
		cfg.Limits.MaxSourceBytes = 50 << 20
	}
	if cfg.Limits.MaxAssetBytes <= 0 {
		cfg.Limits.MaxAssetBytes = 2 << 20
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Cache.PDFCacheTTL <= 0 {
		cfg.Cache.PDFCacheTTL = 24 * time.Hour
	}

	if cfg.PDF.Engine == "" {
		cfg.PDF.Engine = EngineChromedp
	}
	if cfg.PDF.DefaultPaper == "" {
		cfg.PDF.DefaultPaper = "A4"
	}
	if len(cfg.PDF.PaperSizes) == 0 {
		cfg.PDF.PaperSizes = map[string]PaperSize{
			"A4":     {Width: 8.27, Height: 11.69},
			"A3":     {Width: 11.69, Height: 16.54},
			"LETTER": {Width: 8.5, Height: 11},
			"LEGAL":  {Width: 8.5, Height: 14},
		}
	}
	if len(cfg.PDF.Profiles) == 0 {
		cfg.PDF.Profiles = map[string]Profile{
			"standard": {
				MarginTop: 0.8, MarginBottom: 0.6, MarginLeft: 0.4, MarginRight: 0.4,
				HeaderFooter: true, PrintBackground: true,
			},
			"fullbleed": {PreferCSSPageSize: true, PrintBackground: true},
		}
	}
	if cfg.PDF.Profile == "" {
		cfg.PDF.Profile = "standard"
	}
	if cfg.PDF.TimeoutSecs <= 0 {
		cfg.PDF.TimeoutSecs = 30
	}
	if cfg.PDF.RequestTimeoutSecs <= 0 {
		cfg.PDF.RequestTimeoutSecs = 2 * cfg.PDF.TimeoutSecs
	}
	if cfg.PDF.NetworkIdleMS <= 0 {
		cfg.PDF.NetworkIdleMS = 500
	}
	if cfg.PDF.AcquireTimeout <= 0 {
		cfg.PDF.AcquireTimeout = 5 * time.Second
	}
	if cfg.PDF.MaxSessions <= 0 {
		cfg.PDF.MaxSessions = 4
	}

	if cfg.Furniture.LogoHeightPx <= 0 {
		cfg.Furniture.LogoHeightPx = 32
	}
	if cfg.Furniture.FetchTimeout <= 0 {
		cfg.Furniture.FetchTimeout = 5 * time.Second
	}
	if cfg.Source.FetchTimeout <= 0 {
		cfg.Source.FetchTimeout = 30 * time.Second
	}

	if cfg.Extract.Workers <= 0 {
		cfg.Extract.Workers = 2
	}
	if cfg.Extract.Timeout <= 0 {
		cfg.Extract.Timeout = 2 * time.Minute
	}

	if cfg.Storage.BaseURL == "" {
		cfg.Storage.BaseURL = "http://localhost:8000"
	}
	cfg.Storage.BaseURL = strings.TrimRight(cfg.Storage.BaseURL, "/")
	if cfg.Storage.PDFDir == "" {
		cfg.Storage.PDFDir = "generated_pdfs"
	}
	if cfg.Storage.WordDir == "" {
		cfg.Storage.WordDir = "word_outputs"
	}
	if cfg.Storage.SweepInterval <= 0 {
		cfg.Storage.SweepInterval = 10 * time.Minute
	}
	if cfg.Storage.LockTTL <= 0 {
		cfg.Storage.LockTTL = 2 * time.Minute
	}

	if cfg.Auth.ReloadInterval <= 0 {
		cfg.Auth.ReloadInterval = time.Minute
	}
	if cfg.RateLimiter.Interval <= 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
}

// Validate reports every inconsistency in cfg.
func (cfg Config) Validate() error {
	var errs []error

	switch cfg.PDF.Engine {
	case EngineChromedp, EngineRod:
	case EngineGotenberg:
		if cfg.PDF.GotenbergURL == "" {
			errs = append(errs, errors.New("pdf.gotenberg_url is required for the gotenberg engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("pdf.engine %q is not supported", cfg.PDF.Engine))
	}

	if _, err := cfg.Geometry(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Limits.MaxHTMLBytes <= 0 || cfg.Limits.MaxPDFBytes <= 0 {
		errs = append(errs, errors.New("limits must be positive"))
	}
	if cfg.Storage.PDFDir == cfg.Storage.WordDir {
		errs = append(errs, errors.New("storage.pdf_dir and storage.word_dir must differ"))
	}
	if cfg.Storage.Retention < 0 {
		errs = append(errs, errors.New("storage.retention must not be negative"))
	}
	if cfg.RateLimiter.UserLimit < 0 {
		errs = append(errs, errors.New("rate_limiter.user_limit must not be negative"))
	}
	if cfg.Auth.Required && !cfg.Auth.Postgres.Enabled() {
		errs = append(errs, errors.New("auth.required needs auth.postgres.host"))
	}
	return errors.Join(errs...)
}

// Geometry resolves the active profile into the deployment render geometry.
func (cfg Config) Geometry() (domain.RenderGeometry, error) {
	p, ok := cfg.PDF.Profiles[cfg.PDF.Profile]
	if !ok {
		return domain.RenderGeometry{}, fmt.Errorf("pdf.profile %q is not defined", cfg.PDF.Profile)
	}
	name := strings.ToUpper(p.Paper)
	if name == "" {
		name = strings.ToUpper(cfg.PDF.DefaultPaper)
	}
	paper, ok := cfg.PDF.PaperSizes[name]
	if !ok {
		return domain.RenderGeometry{}, fmt.Errorf("paper size %q is not configured", name)
	}
	if p.Landscape {
		paper.Width, paper.Height = paper.Height, paper.Width
	}

	g := domain.RenderGeometry{
		PaperWidth:        paper.Width,
		PaperHeight:       paper.Height,
		MarginTop:         p.MarginTop,
		MarginBottom:      p.MarginBottom,
		MarginLeft:        p.MarginLeft,
		MarginRight:       p.MarginRight,
		PreferCSSPageSize: p.PreferCSSPageSize,
		HeaderFooter:      p.HeaderFooter,
		PrintBackground:   p.PrintBackground,
	}
	if err := g.Validate(); err != nil {
		return domain.RenderGeometry{}, fmt.Errorf("profile %q: %w", cfg.PDF.Profile, err)
	}
	return g, nil
}

// ContentLoadTimeout bounds waiting for network quiescence.
func (cfg Config) ContentLoadTimeout() time.Duration {
	return time.Duration(cfg.PDF.TimeoutSecs) * time.Second
}

// RequestTimeout is the end-to-end deadline composed over one conversion.
func (cfg Config) RequestTimeout() time.Duration {
	return time.Duration(cfg.PDF.RequestTimeoutSecs) * time.Second
}
