// Package config loads the taxlot configuration from the environment, or from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/etnz/taxlot"
	"github.com/etnz/taxlot/logger"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration of a taxlot process.
type Config struct {
	// Core settings
	DatabasePath string // empty means in-memory
	LogLevel     string
	Port         string

	// Currencies
	National string
	Base     string
	Pegged   []string

	// Tax rules
	Rates              taxlot.RateTable
	MissingBasisAsZero bool

	// Prices and rates
	PriceSources    []string
	PriceFallback   taxlot.FallbackPolicy
	LiveRate        bool
	ManualRate      decimal.Decimal // zero for none
	CoinGeckoAPIKey string

	// Reporting
	Location  *time.Location
	Bucketing taxlot.Bucketing

	// Assets is the optional registry of known symbols.
	Assets []string
}

// Load reads the configuration from the files, or from .env in the current or the
// parent directory when none is given, and from the OS environment.
// Variables already set in the environment take precedence over files.
func Load(files ...string) (*Config, error) {
	loadEnvFiles(files)

	var errs []error
	cfg := &Config{
		DatabasePath:    getEnv("TAXLOT_DB", "taxlot.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            getEnv("PORT", "8080"),
		National:        strings.ToUpper(getEnv("TAXLOT_NATIONAL_CURRENCY", "VND")),
		Base:            strings.ToUpper(getEnv("TAXLOT_BASE_CURRENCY", "USD")),
		Pegged:          getEnvAsList("TAXLOT_PEGGED", "USDT,USDC", strings.ToUpper),
		PriceSources:    getEnvAsList("TAXLOT_PRICE_SOURCES", "binance,coingecko", strings.ToLower),
		CoinGeckoAPIKey: getEnv("COINGECKO_API_KEY", ""),
		Assets:          getEnvAsList("TAXLOT_ASSETS", "", strings.ToUpper),
	}
	if _, ok := os.LookupEnv("TAXLOT_DB"); ok {
		// an explicitly empty TAXLOT_DB selects the memory store
		cfg.DatabasePath = os.Getenv("TAXLOT_DB")
	}

	for _, c := range []string{cfg.National, cfg.Base} {
		if !taxlot.KnownCurrency(c) {
			errs = append(errs, fmt.Errorf("unknown currency %q", c))
		}
	}

	var err error
	cfg.Rates = taxlot.DefaultRates()
	if cfg.Rates.Transfer, err = getEnvAsDecimal("TAXLOT_TRANSFER_RATE", cfg.Rates.Transfer); err != nil {
		errs = append(errs, err)
	}
	if cfg.Rates.OtherIncome, err = getEnvAsDecimal("TAXLOT_OTHER_INCOME_RATE", cfg.Rates.OtherIncome); err != nil {
		errs = append(errs, err)
	}
	if cfg.Rates.Fee, err = taxlot.ParseFeeTreatment(getEnv("TAXLOT_FEE_TREATMENT", "non-taxable")); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Rates.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.MissingBasisAsZero, err = getEnvAsBool("TAXLOT_MISSING_BASIS_AS_ZERO", false); err != nil {
		errs = append(errs, err)
	}

	if cfg.PriceFallback, err = taxlot.ParseFallbackPolicy(getEnv("TAXLOT_PRICE_FALLBACK", "skip")); err != nil {
		errs = append(errs, err)
	}
	if cfg.LiveRate, err = getEnvAsBool("TAXLOT_LIVE_RATE", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.ManualRate, err = getEnvAsDecimal("TAXLOT_MANUAL_RATE", decimal.Zero); err != nil {
		errs = append(errs, err)
	} else if cfg.ManualRate.IsNegative() {
		errs = append(errs, fmt.Errorf("TAXLOT_MANUAL_RATE must be positive, got %v", cfg.ManualRate))
	}
	if !cfg.LiveRate && !cfg.ManualRate.IsPositive() && cfg.National != cfg.Base {
		errs = append(errs, errors.New("TAXLOT_LIVE_RATE is disabled and no TAXLOT_MANUAL_RATE is set"))
	}
	for _, s := range cfg.PriceSources {
		if s != "binance" && s != "coingecko" {
			errs = append(errs, fmt.Errorf("unknown price source %q", s))
		}
	}

	if cfg.Location, err = time.LoadLocation(getEnv("TAXLOT_TIMEZONE", "Asia/Ho_Chi_Minh")); err != nil {
		errs = append(errs, fmt.Errorf("TAXLOT_TIMEZONE: %w", err))
	}
	if cfg.Bucketing, err = taxlot.ParseBucketing(getEnv("TAXLOT_BUCKETING", "month")); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", taxlot.ErrConfiguration, err)
	}
	return cfg, nil
}

// loadEnvFiles loads the given files, or .env with a fallback on ../.env.
func loadEnvFiles(files []string) {
	log := logger.L
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			log.Warn("error loading env files, relying on OS environment variables", "files", files, "error", err)
		}
		return
	}
	err := godotenv.Load()
	if err != nil {
		// common when running from a sub directory
		err = godotenv.Load("../.env")
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug("no .env file found, relying on OS environment variables")
	case err != nil:
		log.Warn("error loading .env file, relying on OS environment variables", "error", err)
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, normalizing each item with norm.
func getEnvAsList(key, defaultValue string, norm func(string) string) []string {
	var list []string
	for _, s := range strings.Split(getEnv(key, defaultValue), ",") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, norm(s))
		}
	}
	return list
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	s := getEnv(key, "")
	if s == "" {
		return defaultValue, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid decimal %q", key, s)
	}
	return d, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	s := getEnv(key, "")
	if s == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid boolean %q", key, s)
	}
	return b, nil
}
