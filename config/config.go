package config

import (
	"fmt"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/spf13/viper"
)

// Pool is one tracked lending pool and the oracle pair pricing its
// collateral in its debt asset.
type Pool struct {
	ID   string
	Pair string
}

// Config provides application configuration. Every retry budget, timeout,
// and threshold the bot uses is set here rather than hard-coded.
type Config struct {
	NodeURL      string
	IndexURL     string
	PriceFeedURL string
	ListenAddr   string

	Identity string
	Pools    []Pool

	ScanInterval          time.Duration
	PriceMaxAge           time.Duration
	ParamsRefreshInterval time.Duration
	ReadBackoffInitial    time.Duration
	ReadBackoffMax        time.Duration
	IndexRequestsPerSec   float64

	MinProfit         math.LegacyDec
	LoanFeeRate       math.LegacyDec
	MinResidualSpread math.LegacyDec

	ConfirmationTimeout time.Duration
	ConfirmPollInterval time.Duration
	MaxEscalations      int
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	MaxTransientWait    time.Duration
	MaxConcurrent       int64

	GasWindow           int
	GasPercentile       math.LegacyDec
	GasUrgentMultiplier math.LegacyDec
	GasFloorPrice       math.LegacyDec
	GasRefreshInterval  time.Duration
	GasLimit            uint64
}

// configSimple mirrors Config with plain strings where Config carries
// fixed-point decimals, so viper can unmarshal it directly.
type configSimple struct {
	NodeURL      string
	IndexURL     string
	PriceFeedURL string
	ListenAddr   string

	Identity string
	Pools    []Pool

	ScanInterval          time.Duration
	PriceMaxAge           time.Duration
	ParamsRefreshInterval time.Duration
	ReadBackoffInitial    time.Duration
	ReadBackoffMax        time.Duration
	IndexRequestsPerSec   float64

	MinProfit         string
	LoanFeeRate       string
	MinResidualSpread string

	ConfirmationTimeout time.Duration
	ConfirmPollInterval time.Duration
	MaxEscalations      int
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	MaxTransientWait    time.Duration
	MaxConcurrent       int64

	GasWindow           int
	GasPercentile       string
	GasUrgentMultiplier string
	GasFloorPrice       string
	GasRefreshInterval  time.Duration
	GasLimit            uint64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenAddr", ":8080")

	v.SetDefault("ScanInterval", 10*time.Second)
	v.SetDefault("PriceMaxAge", time.Minute)
	v.SetDefault("ParamsRefreshInterval", 10*time.Minute)
	v.SetDefault("ReadBackoffInitial", 5*time.Second)
	v.SetDefault("ReadBackoffMax", 5*time.Minute)
	v.SetDefault("IndexRequestsPerSec", 10.0)

	v.SetDefault("MinProfit", "1.0")
	v.SetDefault("LoanFeeRate", "0.0009")
	v.SetDefault("MinResidualSpread", "0.5")

	v.SetDefault("ConfirmationTimeout", 30*time.Second)
	v.SetDefault("ConfirmPollInterval", 2*time.Second)
	v.SetDefault("MaxEscalations", 3)
	v.SetDefault("InitialBackoff", time.Second)
	v.SetDefault("MaxBackoff", 30*time.Second)
	v.SetDefault("MaxTransientWait", 2*time.Minute)
	v.SetDefault("MaxConcurrent", 4)

	v.SetDefault("GasWindow", 20)
	v.SetDefault("GasPercentile", "0.9")
	v.SetDefault("GasUrgentMultiplier", "1.5")
	v.SetDefault("GasFloorPrice", "0.000000001")
	v.SetDefault("GasRefreshInterval", 15*time.Second)
	v.SetDefault("GasLimit", 1_500_000)
}

// LoadConfig reads config.toml from the given paths (falling back to the
// working directory and $HOME), applies LIQUIDATOR_* environment overrides,
// and validates the result. A missing file is fine when the environment
// supplies the required keys.
func LoadConfig(paths ...string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	if len(paths) == 0 {
		paths = []string{".", "$HOME"}
	}
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("liquidator")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, err
		}
	}

	var temp configSimple
	if err := v.Unmarshal(&temp); err != nil {
		return Config{}, err
	}

	cfg, err := fromSimple(temp)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func fromSimple(temp configSimple) (Config, error) {
	parse := func(name, raw string) (math.LegacyDec, error) {
		dec, err := math.LegacyNewDecFromStr(raw)
		if err != nil {
			return math.LegacyDec{}, fmt.Errorf("%s: invalid decimal %q: %w", name, raw, err)
		}
		return dec, nil
	}

	minProfit, err := parse("MinProfit", temp.MinProfit)
	if err != nil {
		return Config{}, err
	}
	loanFeeRate, err := parse("LoanFeeRate", temp.LoanFeeRate)
	if err != nil {
		return Config{}, err
	}
	minResidualSpread, err := parse("MinResidualSpread", temp.MinResidualSpread)
	if err != nil {
		return Config{}, err
	}
	gasPercentile, err := parse("GasPercentile", temp.GasPercentile)
	if err != nil {
		return Config{}, err
	}
	urgentMultiplier, err := parse("GasUrgentMultiplier", temp.GasUrgentMultiplier)
	if err != nil {
		return Config{}, err
	}
	gasFloor, err := parse("GasFloorPrice", temp.GasFloorPrice)
	if err != nil {
		return Config{}, err
	}

	return Config{
		NodeURL:      temp.NodeURL,
		IndexURL:     temp.IndexURL,
		PriceFeedURL: temp.PriceFeedURL,
		ListenAddr:   temp.ListenAddr,

		Identity: temp.Identity,
		Pools:    temp.Pools,

		ScanInterval:          temp.ScanInterval,
		PriceMaxAge:           temp.PriceMaxAge,
		ParamsRefreshInterval: temp.ParamsRefreshInterval,
		ReadBackoffInitial:    temp.ReadBackoffInitial,
		ReadBackoffMax:        temp.ReadBackoffMax,
		IndexRequestsPerSec:   temp.IndexRequestsPerSec,

		MinProfit:         minProfit,
		LoanFeeRate:       loanFeeRate,
		MinResidualSpread: minResidualSpread,

		ConfirmationTimeout: temp.ConfirmationTimeout,
		ConfirmPollInterval: temp.ConfirmPollInterval,
		MaxEscalations:      temp.MaxEscalations,
		InitialBackoff:      temp.InitialBackoff,
		MaxBackoff:          temp.MaxBackoff,
		MaxTransientWait:    temp.MaxTransientWait,
		MaxConcurrent:       temp.MaxConcurrent,

		GasWindow:           temp.GasWindow,
		GasPercentile:       gasPercentile,
		GasUrgentMultiplier: urgentMultiplier,
		GasFloorPrice:       gasFloor,
		GasRefreshInterval:  temp.GasRefreshInterval,
		GasLimit:            temp.GasLimit,
	}, nil
}

// Validate rejects configurations the bot cannot run safely with.
func (c Config) Validate() error {
	if c.NodeURL == "" {
		return fmt.Errorf("NodeURL not set")
	}
	if c.IndexURL == "" {
		return fmt.Errorf("IndexURL not set")
	}
	if c.PriceFeedURL == "" {
		return fmt.Errorf("PriceFeedURL not set")
	}
	if c.Identity == "" {
		return fmt.Errorf("Identity not set")
	}
	if len(c.Pools) == 0 {
		return fmt.Errorf("no pools configured")
	}
	for i, pool := range c.Pools {
		if pool.ID == "" || pool.Pair == "" {
			return fmt.Errorf("pool %d: ID and Pair are both required", i)
		}
	}

	if c.ScanInterval <= 0 {
		return fmt.Errorf("ScanInterval must be positive")
	}
	if c.PriceMaxAge <= 0 {
		return fmt.Errorf("PriceMaxAge must be positive")
	}
	if c.LoanFeeRate.IsNegative() {
		return fmt.Errorf("LoanFeeRate must not be negative")
	}
	if c.MinResidualSpread.IsNegative() {
		return fmt.Errorf("MinResidualSpread must not be negative")
	}

	if c.ConfirmationTimeout <= 0 || c.ConfirmPollInterval <= 0 {
		return fmt.Errorf("confirmation timeout and poll interval must be positive")
	}
	if c.MaxEscalations < 0 {
		return fmt.Errorf("MaxEscalations must not be negative")
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("backoff bounds must satisfy 0 < InitialBackoff <= MaxBackoff")
	}
	if c.MaxTransientWait <= 0 {
		return fmt.Errorf("MaxTransientWait must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("MaxConcurrent must be positive")
	}

	if c.GasWindow <= 0 {
		return fmt.Errorf("GasWindow must be positive")
	}
	if !c.GasPercentile.IsPositive() || c.GasPercentile.GT(math.LegacyOneDec()) {
		return fmt.Errorf("GasPercentile must be in (0, 1]")
	}
	if c.GasUrgentMultiplier.LT(math.LegacyOneDec()) {
		return fmt.Errorf("GasUrgentMultiplier must be at least 1")
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("GasLimit must be positive")
	}
	return nil
}
