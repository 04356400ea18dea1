package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	for _, sym := range c.Market.Symbols {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("market.symbols contains an empty entry")
		}
	}
	if c.Strategy.Lookback < c.Strategy.RSIPeriod+1 {
		return fmt.Errorf("strategy.lookback (%d) must be at least rsi_period+1 (%d)",
			c.Strategy.Lookback, c.Strategy.RSIPeriod+1)
	}
	if c.Notify.Telegram.Enabled {
		if strings.TrimSpace(c.Notify.Telegram.BotToken) == "" {
			return fmt.Errorf("notify.telegram.bot_token is required when telegram is enabled")
		}
		if strings.TrimSpace(c.Notify.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}
