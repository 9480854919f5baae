package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"golang-backtest/config"
	"golang-backtest/internal/dto"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/utils"
)

var fetchFlags struct {
	start     string
	end       string
	timeframe string
	outDir    string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch SYMBOL...",
	Short: "Download bars from market data into parquet files for offline backtests",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
		if err != nil {
			return err
		}
		repo, err := repository.NewYahooFinanceRepository(cfg.MarketData, log)
		if err != nil {
			return err
		}

		tf, err := dto.ParseTimeframe(fetchFlags.timeframe)
		if err != nil {
			return err
		}
		param := dto.GetBarsParam{Timeframe: tf}
		if param.From, err = utils.ParseDate(fetchFlags.start); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		if fetchFlags.end != "" {
			if param.To, err = utils.ParseDate(fetchFlags.end); err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
		}

		for _, symbol := range args {
			p := param
			p.Symbol = strings.ToUpper(symbol)
			bars, err := repo.Get(cmd.Context(), p)
			if err != nil {
				return err
			}
			path := filepath.Join(fetchFlags.outDir, fmt.Sprintf("%s_%s.parquet", strings.ToLower(p.Symbol), tf))
			if err := repository.WriteBarFile(path, p.Symbol, bars); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bars -> %s\n", p.Symbol, len(bars), path)
		}
		return nil
	},
}

func init() {
	f := fetchCmd.Flags()
	f.StringVar(&fetchFlags.start, "start", "", "first date to fetch")
	f.StringVar(&fetchFlags.end, "end", "", "last date to fetch, defaults to now")
	f.StringVar(&fetchFlags.timeframe, "timeframe", string(dto.Timeframe1Day), "bar timeframe")
	f.StringVar(&fetchFlags.outDir, "out", "data", "output directory")
	_ = fetchCmd.MarkFlagRequired("start")
}
