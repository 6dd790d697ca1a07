package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fclmail/ARBBOT1/internal/chain"
	"github.com/fclmail/ARBBOT1/internal/config"
	"github.com/fclmail/ARBBOT1/internal/evaluate"
	"github.com/fclmail/ARBBOT1/internal/feed"
	"github.com/fclmail/ARBBOT1/internal/guard"
	"github.com/fclmail/ARBBOT1/internal/metrics"
	"github.com/fclmail/ARBBOT1/internal/scanner"
	"github.com/fclmail/ARBBOT1/internal/settle"
	"github.com/fclmail/ARBBOT1/internal/types"
	"github.com/fclmail/ARBBOT1/internal/units"
	"github.com/fclmail/ARBBOT1/internal/venue"
)

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}

func resolveToken(ctx context.Context, client *chain.Client, tc config.TokenCfg) (types.Token, error) {
	t := types.Token{
		Symbol:   tc.Symbol,
		Address:  common.HexToAddress(tc.Address),
		Decimals: tc.Decimals,
	}
	if t.Decimals == 0 {
		d, err := client.TokenDecimals(ctx, t.Address)
		if err != nil {
			return types.Token{}, fmt.Errorf("resolve decimals for %s: %w", tc.Symbol, err)
		}
		t.Decimals = d
	}
	return t, nil
}

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("received signal, finishing current cycle...")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, metrics.NewRegistry(), logger)

	client, err := chain.Dial(ctx, cfg.Chain.RPCHTTP, cfg.Chain.RPCWS, cfg.Chain.WalletPK, logger)
	if err != nil {
		logger.Fatal("chain dial failed", zap.Error(err))
	}

	asset, err := resolveToken(ctx, client, cfg.Tokens.Asset)
	if err != nil {
		logger.Fatal("asset token", zap.Error(err))
	}
	quote, err := resolveToken(ctx, client, cfg.Tokens.Quote)
	if err != nil {
		logger.Fatal("quote token", zap.Error(err))
	}

	amountIn, truncated, err := units.ToBaseUnits(cfg.Trade.AmountIn, quote.Decimals)
	if err != nil {
		logger.Fatal("bad trade.amount_in", zap.String("value", cfg.Trade.AmountIn), zap.Error(err))
	}
	if truncated {
		logger.Warn("trade.amount_in truncated to token precision",
			zap.String("configured", cfg.Trade.AmountIn),
			zap.String("effective", units.ToHuman(amountIn, quote.Decimals)))
	}
	if amountIn.Sign() == 0 {
		logger.Fatal("trade.amount_in is zero at token precision", zap.String("value", cfg.Trade.AmountIn))
	}

	minProfit, truncated, err := units.ToBaseUnits(cfg.Risk.MinProfit, quote.Decimals)
	if err != nil {
		logger.Fatal("bad risk.min_profit", zap.String("value", cfg.Risk.MinProfit), zap.Error(err))
	}
	if truncated {
		logger.Warn("risk.min_profit truncated to token precision", zap.String("configured", cfg.Risk.MinProfit))
	}
	// Anything below one base unit would pass every cycle.
	clamped := units.ClampMin(minProfit, big.NewInt(1))
	if clamped.Cmp(minProfit) != 0 {
		logger.Warn("risk.min_profit clamped to one base unit",
			zap.String("configured", cfg.Risk.MinProfit),
			zap.Uint8("decimals", quote.Decimals))
	}
	minProfit = clamped

	var maxGasWei *big.Int
	if cfg.Chain.MaxGasWei != "" {
		maxGasWei = new(big.Int)
		if _, ok := maxGasWei.SetString(cfg.Chain.MaxGasWei, 10); !ok {
			logger.Fatal("bad chain.max_gas_wei", zap.String("value", cfg.Chain.MaxGasWei))
		}
	}

	venues := make([]*venue.Venue, 0, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		v, err := venue.New(vc.Name, common.HexToAddress(vc.Router), vc.DirectOnly, client)
		if err != nil {
			logger.Fatal("venue init failed", zap.String("venue", vc.Name), zap.Error(err))
		}
		venues = append(venues, v)
	}

	if cfg.Chain.Multicall != "" {
		mc, err := chain.NewMulticall(client, common.HexToAddress(cfg.Chain.Multicall))
		if err != nil {
			logger.Fatal("multicall init failed", zap.Error(err))
		}
		okVenues, failedVenues, err := venue.Preflight(ctx, mc, venues,
			[]common.Address{quote.Address, asset.Address})
		if err != nil {
			logger.Warn("venue preflight failed", zap.Error(err))
		} else {
			logger.Info("venue preflight", zap.Strings("ok", okVenues))
			if len(failedVenues) > 0 {
				logger.Warn("venues with no pool for trade path", zap.Strings("venues", failedVenues))
			}
		}
	}

	ev := evaluate.New(asset, quote, logger)

	var pairs []scanner.Pair
	for i, buy := range venues {
		for j, sell := range venues {
			if i == j {
				continue
			}
			pairs = append(pairs, scanner.Pair{
				Dir: evaluate.Direction{
					Label:    buy.Name + "->" + sell.Name,
					Buy:      buy,
					Sell:     sell,
					BuyName:  buy.Name,
					SellName: sell.Name,
				},
				BuyRouter:  buy.Router,
				SellRouter: sell.Router,
			})
		}
	}

	var g *guard.Guard
	var contract *settle.Contract
	if !cfg.DryRun {
		contract, err = settle.New(common.HexToAddress(cfg.Settlement.Contract), client)
		if err != nil {
			logger.Fatal("settlement contract init failed", zap.Error(err))
		}
		g = guard.New(client, contract, cfg.Risk.GasMarginBps, cfg.Chain.GasLimitSettle, maxGasWei, logger)
	} else {
		logger.Warn("DRY-RUN: no settlement transactions will be sent")
	}

	var pub *feed.Publisher
	if cfg.Redis.Addr != "" {
		pub = feed.NewPublisher(cfg)
		defer pub.Close()
		logger.Info("redis feed enabled", zap.String("addr", cfg.Redis.Addr))
	}

	var heads chan uint64
	if cfg.Chain.RPCWS != "" {
		heads = make(chan uint64, 16)
		if err := client.SubscribeNewHeads(ctx, heads); err != nil {
			logger.Warn("head subscription unavailable, falling back to interval", zap.Error(err))
			heads = nil
		}
	}

	logger.Info("scanner starting",
		zap.String("asset", asset.Symbol),
		zap.String("quote", quote.Symbol),
		zap.Int("venues", len(venues)),
		zap.Int("directions", len(pairs)),
		zap.String("amount_in", units.ToHuman(amountIn, quote.Decimals)),
		zap.String("min_profit", units.ToHuman(minProfit, quote.Decimals)),
		zap.Bool("dry_run", cfg.DryRun),
	)

	s := scanner.New(pairs, amountIn, minProfit, cfg.ScanInterval(), cfg.DryRun,
		ev, contract, g, client, scannerFeed(pub), logger)
	s.Run(ctx, heads)

	logger.Info("scanner exited")
}

// scannerFeed keeps a nil *feed.Publisher from becoming a non-nil
// interface value inside the scanner.
func scannerFeed(p *feed.Publisher) scanner.Feed {
	if p == nil {
		return nil
	}
	return p
}
