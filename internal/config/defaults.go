package config

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8080"
	}
	if len(c.Market.Symbols) == 0 {
		c.Market.Symbols = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"}
	}
	if c.Market.StreamInterval == "" {
		c.Market.StreamInterval = "1m"
	}
	if c.Market.QueueCapacity <= 0 {
		c.Market.QueueCapacity = 1024
	}
	if c.Market.EventBuffer <= 0 {
		c.Market.EventBuffer = 512
	}
	if c.Market.HTTPTimeoutSec <= 0 {
		c.Market.HTTPTimeoutSec = 10
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "data/cache.sqlite3"
	}
	if c.Cache.MaxRows <= 0 {
		c.Cache.MaxRows = 100
	}
	if c.Cache.TickerTTL <= 0 {
		c.Cache.TickerTTL = 20
	}
	if c.Cache.FundingTTL <= 0 {
		c.Cache.FundingTTL = 180
	}
	if c.Poller.TickerIntervalSec <= 0 {
		c.Poller.TickerIntervalSec = 10
	}
	if c.Poller.FundingIntervalSec <= 0 {
		c.Poller.FundingIntervalSec = 60
	}
	if c.Strategy.Lookback <= 0 {
		c.Strategy.Lookback = 500
	}
	if c.Strategy.RSIPeriod <= 0 {
		c.Strategy.RSIPeriod = 14
	}
	if c.Signal.MinStrength <= 0 {
		c.Signal.MinStrength = 0.5
	}
	if c.Signal.CooldownSeconds <= 0 {
		c.Signal.CooldownSeconds = 300
	}
	if c.Signal.LoopSeconds <= 0 {
		c.Signal.LoopSeconds = 5
	}
	if c.Trading.EquityUSD <= 0 {
		c.Trading.EquityUSD = 10_000
	}
	if c.Trading.PositionPct <= 0 || c.Trading.PositionPct > 1 {
		c.Trading.PositionPct = 0.05
	}
	if c.Trading.MaxPositionUSD <= 0 {
		c.Trading.MaxPositionUSD = 2_000
	}
}
