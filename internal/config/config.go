package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type VenueCfg struct {
	Name       string `yaml:"name"`
	Router     string `yaml:"router"`
	DirectOnly bool   `yaml:"direct_only"`
}

type TokenCfg struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"` // 0 = resolve on-chain at startup
}

type Config struct {
	DryRun bool `yaml:"dry_run"`

	Chain struct {
		RPCHTTP        string `yaml:"rpc_http"`
		RPCWS          string `yaml:"rpc_ws"`
		WalletPK       string `yaml:"wallet_pk"`
		GasLimitSettle uint64 `yaml:"gas_limit_settle"`
		MaxGasWei      string `yaml:"max_gas_wei"` // optional worst-case fee budget
		Multicall      string `yaml:"multicall"`   // optional, enables startup venue probe
	} `yaml:"chain"`

	Settlement struct {
		Contract string `yaml:"contract"`
	} `yaml:"settlement"`

	Venues []VenueCfg `yaml:"venues"`

	Tokens struct {
		Asset TokenCfg `yaml:"asset"`
		Quote TokenCfg `yaml:"quote"`
	} `yaml:"tokens"`

	Trade struct {
		AmountIn string `yaml:"amount_in"` // human decimal, quote-asset units
	} `yaml:"trade"`

	Risk struct {
		MinProfit    string `yaml:"min_profit"`     // human decimal, quote-asset units
		GasMarginBps int    `yaml:"gas_margin_bps"` // 0 means the 1500 (15%) default; a zero margin is not expressible
	} `yaml:"risk"`

	Timings struct {
		ScanIntervalMs int `yaml:"scan_interval_ms"`
	} `yaml:"timings"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Stream   string `yaml:"stream"`
		SnapNS   string `yaml:"snap_ns"`
	} `yaml:"redis"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Timings.ScanIntervalMs == 0 {
		c.Timings.ScanIntervalMs = 1000
	}
	if c.Risk.GasMarginBps == 0 {
		c.Risk.GasMarginBps = 1500
	}
	if c.Chain.GasLimitSettle == 0 {
		c.Chain.GasLimitSettle = 600_000
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "arb:opportunities"
	}
	if c.Redis.SnapNS == "" {
		c.Redis.SnapNS = "arb:snap"
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Chain.RPCHTTP == "" {
		return fmt.Errorf("chain.rpc_http is required")
	}
	if len(c.Venues) < 2 {
		return fmt.Errorf("at least two venues required, got %d", len(c.Venues))
	}
	seen := make(map[string]struct{}, len(c.Venues))
	for i := range c.Venues {
		v := &c.Venues[i]
		if v.Name == "" {
			return fmt.Errorf("venues[%d].name is empty", i)
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("duplicate venue name %q", v.Name)
		}
		seen[v.Name] = struct{}{}
		addr, err := ChecksumAddress(v.Router)
		if err != nil {
			return fmt.Errorf("venues[%d].router: %w", i, err)
		}
		v.Router = addr
	}
	for _, tc := range []struct {
		name string
		t    *TokenCfg
	}{{"tokens.asset", &c.Tokens.Asset}, {"tokens.quote", &c.Tokens.Quote}} {
		addr, err := ChecksumAddress(tc.t.Address)
		if err != nil {
			return fmt.Errorf("%s.address: %w", tc.name, err)
		}
		tc.t.Address = addr
	}
	if c.Chain.Multicall != "" {
		addr, err := ChecksumAddress(c.Chain.Multicall)
		if err != nil {
			return fmt.Errorf("chain.multicall: %w", err)
		}
		c.Chain.Multicall = addr
	}
	if c.Tokens.Asset.Address == c.Tokens.Quote.Address {
		return fmt.Errorf("asset and quote token are the same address")
	}
	if !c.DryRun {
		if c.Settlement.Contract == "" {
			return fmt.Errorf("settlement.contract is required unless dry_run")
		}
		addr, err := ChecksumAddress(c.Settlement.Contract)
		if err != nil {
			return fmt.Errorf("settlement.contract: %w", err)
		}
		c.Settlement.Contract = addr
		if c.Chain.WalletPK == "" {
			return fmt.Errorf("chain.wallet_pk is required unless dry_run")
		}
	}
	if c.Trade.AmountIn == "" {
		return fmt.Errorf("trade.amount_in is required")
	}
	if c.Risk.MinProfit == "" {
		return fmt.Errorf("risk.min_profit is required")
	}
	if c.Risk.GasMarginBps < 0 {
		return fmt.Errorf("risk.gas_margin_bps must not be negative")
	}
	return nil
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Timings.ScanIntervalMs) * time.Millisecond
}
