package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Config struct {
	TelegramApiToken string
	TelegramChatID   string

	ExchangeApiKey    string
	ExchangeSecretKey string
	ExchangeUrl       string
	ExchangeWsUrl     string
	NativeOCO         bool

	Symbols []SymbolConfig

	ListenAddr    string
	LogLevel      string
	LokiUrl       string
	NegligibleQty decimal.Decimal
}

// SymbolConfig is one traded market with its order size and exit offsets.
type SymbolConfig struct {
	Symbol     string
	Interval   string
	Quantity   decimal.Decimal
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

var ErrEnvNotFound = errors.New("err env not found")

func (a *App) loadConfig(confFileName string) error {
	var cfg Config

	err := godotenv.Load(confFileName)
	if err != nil {
		return err
	}

	if cfg.TelegramApiToken, err = cfg.set("TELEGRAM_API_TOKEN"); err != nil {
		return err
	}

	if cfg.TelegramChatID, err = cfg.set("TELEGRAM_CHAT_ID"); err != nil {
		return err
	}

	if cfg.ExchangeApiKey, err = cfg.set("EXCHANGE_API_KEY"); err != nil {
		return err
	}

	if cfg.ExchangeSecretKey, err = cfg.set("EXCHANGE_SECRET_KEY"); err != nil {
		return err
	}

	if cfg.ExchangeUrl, err = cfg.set("EXCHANGE_URL"); err != nil {
		return err
	}

	if cfg.ExchangeWsUrl, err = cfg.set("EXCHANGE_WS_URL"); err != nil {
		return err
	}

	symbols, err := cfg.set("SYMBOLS")
	if err != nil {
		return err
	}
	if cfg.Symbols, err = parseSymbols(symbols); err != nil {
		return err
	}

	cfg.NativeOCO = cfg.optional("EXCHANGE_NATIVE_OCO", "true") == "true"
	cfg.ListenAddr = cfg.optional("LISTEN_ADDR", ":8080")
	cfg.LogLevel = cfg.optional("LOG_LEVEL", "INFO")
	cfg.LokiUrl = cfg.optional("LOKI_URL", "")

	if cfg.NegligibleQty, err = decimal.NewFromString(cfg.optional("NEGLIGIBLE_QTY", "0")); err != nil {
		return errors.Wrap(err, "NEGLIGIBLE_QTY")
	}

	a.Config = &cfg

	return nil
}

// parseSymbols decodes SYMBOLS=BTCUSDT:0.001:0.01:0.005:1m,... as
// symbol:quantity:takeProfit:stopLoss:interval.
func parseSymbols(raw string) ([]SymbolConfig, error) {
	var out []SymbolConfig

	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 5 {
			return nil, errors.Errorf("malformed symbol entry %q", entry)
		}

		var (
			sc  SymbolConfig
			err error
		)
		sc.Symbol = parts[0]
		if sc.Quantity, err = decimal.NewFromString(parts[1]); err != nil {
			return nil, errors.Wrapf(err, "symbol %s quantity", sc.Symbol)
		}
		if sc.TakeProfit, err = decimal.NewFromString(parts[2]); err != nil {
			return nil, errors.Wrapf(err, "symbol %s take profit", sc.Symbol)
		}
		if sc.StopLoss, err = decimal.NewFromString(parts[3]); err != nil {
			return nil, errors.Wrapf(err, "symbol %s stop loss", sc.Symbol)
		}
		sc.Interval = parts[4]

		out = append(out, sc)
	}

	if len(out) == 0 {
		return nil, errors.New("no symbols configured")
	}

	return out, nil
}

func (c *Config) set(key string) (string, error) {
	if os.Getenv(key) == "" {
		return "", errors.Wrap(ErrEnvNotFound, key)
	}

	return os.Getenv(key), nil
}

func (c *Config) optional(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
