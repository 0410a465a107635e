package domain

import "time"

// Mode selects the scraping path.
type Mode string

const (
	ModeBrowser Mode = "browser"
	ModeHTTP    Mode = "http"
)

type DriverConfig struct {
	BinaryPath   string        `mapstructure:"binary_path"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Headless     bool          `mapstructure:"headless"`
	Args         []string      `mapstructure:"args"`
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// SelectorConfig overrides the CSS selectors a site variant uses. Empty
// fields fall back to the variant's defaults.
type SelectorConfig struct {
	Title             string `mapstructure:"title"`
	TotalEpisodes     string `mapstructure:"total_episodes"`
	AvailableEpisodes string `mapstructure:"available_episodes"`
	Image             string `mapstructure:"image"`
	DownloadLink      string `mapstructure:"download_link"`
	CanonicalLink     string `mapstructure:"canonical_link"`
	// PlayerReady is an extra element to wait for before the download link.
	PlayerReady       string `mapstructure:"player_ready"`
}

type Config struct {
	Site              string         `mapstructure:"site"`
	BaseURL           string         `mapstructure:"base_url"`
	SearchEndpoint    string         `mapstructure:"search_endpoint"`
	UserAgent         string         `mapstructure:"user_agent"`
	RequestTimeout    time.Duration  `mapstructure:"request_timeout"`
	WaitTimeout       time.Duration  `mapstructure:"wait_timeout"`
	PollInterval      time.Duration  `mapstructure:"poll_interval"`
	LogLevel          string         `mapstructure:"log_level"`
	DiscordWebhookURL string         `mapstructure:"discord_webhook_url"`
	Driver            DriverConfig   `mapstructure:"driver"`
	Retry             RetryConfig    `mapstructure:"retry"`
	Selectors         SelectorConfig `mapstructure:"selectors"`
}
