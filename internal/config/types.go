package config

// Config is the full configuration surface of the bot core.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Market   MarketConfig   `mapstructure:"market"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Signal   SignalConfig   `mapstructure:"signal"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
	HTTPAddr string `mapstructure:"http_addr"`
}

type MarketConfig struct {
	Symbols        []string `mapstructure:"symbols"`
	StreamInterval string   `mapstructure:"stream_interval"`
	QueueCapacity  int      `mapstructure:"queue_capacity"`
	EventBuffer    int      `mapstructure:"event_buffer"`
	RESTBaseURL    string   `mapstructure:"rest_base_url"`
	HTTPTimeoutSec int      `mapstructure:"http_timeout_seconds"`
}

type CacheConfig struct {
	Path       string `mapstructure:"path"`
	MaxRows    int    `mapstructure:"max_rows_per_key"`
	TickerTTL  int    `mapstructure:"ticker_ttl_seconds"`
	FundingTTL int    `mapstructure:"funding_ttl_seconds"`
}

// PollerConfig drives the interval scheduler: one named task per entry.
type PollerConfig struct {
	TickerIntervalSec  int `mapstructure:"ticker_interval_seconds"`
	FundingIntervalSec int `mapstructure:"funding_interval_seconds"`
}

type StrategyConfig struct {
	Lookback  int `mapstructure:"lookback"`
	RSIPeriod int `mapstructure:"rsi_period"`
}

type SignalConfig struct {
	MinStrength     float64 `mapstructure:"min_strength"`
	CooldownSeconds int     `mapstructure:"cooldown_seconds"`
	LoopSeconds     int     `mapstructure:"loop_seconds"`
}

type TradingConfig struct {
	PaperMode      bool    `mapstructure:"paper_mode"`
	EquityUSD      float64 `mapstructure:"equity_usd"`
	PositionPct    float64 `mapstructure:"position_pct"`
	MaxPositionUSD float64 `mapstructure:"max_position_usd"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}
