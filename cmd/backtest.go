package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/engine"
	"golang-backtest/internal/indicator"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/cache"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/utils"
)

type backtestFlags struct {
	strategyPath string
	configPath   string
	bars         []string
	start        string
	end          string
	capital      float64
	benchmark    string
	timeframe    string
	sharedCap    bool
	outPath      string
	logLevel     string
}

var btFlags backtestFlags

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest a strategy file against local bar files",
	Example: "  golang-backtest backtest --strategy rsi.yaml --bars AAPL=aapl.csv --bars SPY=spy.parquet \\\n" +
		"    --config bt.yaml --benchmark SPY --out result.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOfflineBacktest(cmd.Context(), cmd.OutOrStdout(), btFlags)
	},
}

func init() {
	f := backtestCmd.Flags()
	f.StringVar(&btFlags.strategyPath, "strategy", "", "strategy definition, yaml or json")
	f.StringVar(&btFlags.configPath, "config", "", "backtest config, yaml or json")
	f.StringArrayVar(&btFlags.bars, "bars", nil, "SYMBOL=path to a csv or parquet bar file, repeatable")
	f.StringVar(&btFlags.start, "start", "", "start date, overrides the config file")
	f.StringVar(&btFlags.end, "end", "", "end date, overrides the config file")
	f.Float64Var(&btFlags.capital, "capital", 0, "initial capital, overrides the config file")
	f.StringVar(&btFlags.benchmark, "benchmark", "", "benchmark symbol, must be one of --bars")
	f.StringVar(&btFlags.timeframe, "timeframe", "", "bar timeframe of the files")
	f.BoolVar(&btFlags.sharedCap, "shared-capital", false, "run all symbols on one capital pool")
	f.StringVar(&btFlags.outPath, "out", "", "write the full results as json")
	f.StringVar(&btFlags.logLevel, "log-level", "warn", "log level")
	_ = backtestCmd.MarkFlagRequired("strategy")
	_ = backtestCmd.MarkFlagRequired("bars")
}

func runOfflineBacktest(ctx context.Context, out io.Writer, flags backtestFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := logger.New(flags.logLevel, "console")
	if err != nil {
		return err
	}

	strategy, err := loadStrategyFile(flags.strategyPath)
	if err != nil {
		return err
	}
	cfg, err := loadBacktestConfig(flags)
	if err != nil {
		return err
	}
	files, err := parseBarFlags(flags.bars)
	if err != nil {
		return err
	}

	tf := cfg.Timeframe.Or(dto.Timeframe1Day)
	repo := repository.NewFileBarRepository(files, tf)
	series := make(dto.SeriesMap, len(files))
	for _, sym := range repo.Symbols() {
		bars, err := repo.Get(ctx, dto.GetBarsParam{Symbol: sym, Timeframe: tf})
		if err != nil {
			return err
		}
		series[sym] = bars
	}

	// list targets resolve from the strategy itself, anything else runs on
	// every loaded symbol except the benchmark
	symbols := strategy.TargetSelection.Symbols
	if strategy.TargetSelection.Type != dto.TargetTypeList || len(symbols) == 0 {
		symbols = nil
		for _, sym := range repo.Symbols() {
			if !strings.EqualFold(sym, cfg.Benchmark) {
				symbols = append(symbols, sym)
			}
		}
	}

	eng := engine.New(engine.DefaultOptions(), indicator.NewLibrary(), cache.NewCache(0, 0), log, engine.StaticResolver{})
	warnings, err := eng.Validate(strategy)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintln(out, "warning:", w)
	}

	results, err := eng.RunSymbols(ctx, strategy, symbols, series, cfg)
	if err != nil {
		return err
	}
	printResults(out, results)

	if flags.outPath != "" {
		b, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(flags.outPath, b, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", flags.outPath, err)
		}
	}
	return nil
}

// loadStrategyFile reads a strategy in yaml or json. Yaml goes through json
// so both formats share the dto decoding rules.
func loadStrategyFile(path string) (*dto.Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy: %w", err)
	}
	if isYAML(path) {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("failed to parse strategy %s: %w", path, err)
		}
	}

	var strategy dto.Strategy
	if err := json.Unmarshal(data, &strategy); err != nil {
		return nil, fmt.Errorf("failed to decode strategy %s: %w", path, err)
	}
	if strategy.ID == "" {
		strategy.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if strategy.Version == 0 {
		strategy.Version = 1
	}
	return &strategy, nil
}

type backtestConfigFile struct {
	StartDate          string  `yaml:"start_date"`
	EndDate            string  `yaml:"end_date"`
	InitialCapital     float64 `yaml:"initial_capital"`
	Commission         float64 `yaml:"commission"`
	Slippage           float64 `yaml:"slippage"`
	Benchmark          string  `yaml:"benchmark"`
	RebalanceFrequency string  `yaml:"rebalance_frequency"`
	Timeframe          string  `yaml:"timeframe"`
	SharedCapital      bool    `yaml:"shared_capital"`
	IncludeEquityCurve bool    `yaml:"include_equity_curve"`
}

// loadBacktestConfig reads the optional config file and applies flag
// overrides on top. Dates accept any layout utils.ParseDate does.
func loadBacktestConfig(flags backtestFlags) (dto.BacktestConfig, error) {
	var file backtestConfigFile
	if flags.configPath != "" {
		data, err := os.ReadFile(flags.configPath)
		if err != nil {
			return dto.BacktestConfig{}, fmt.Errorf("failed to read config: %w", err)
		}
		// yaml is a superset of json
		if err := yaml.Unmarshal(data, &file); err != nil {
			return dto.BacktestConfig{}, fmt.Errorf("failed to parse config %s: %w", flags.configPath, err)
		}
	}
	if flags.start != "" {
		file.StartDate = flags.start
	}
	if flags.end != "" {
		file.EndDate = flags.end
	}
	if flags.capital > 0 {
		file.InitialCapital = flags.capital
	}
	if flags.benchmark != "" {
		file.Benchmark = flags.benchmark
	}
	if flags.timeframe != "" {
		file.Timeframe = flags.timeframe
	}
	if flags.sharedCap {
		file.SharedCapital = true
	}

	cfg := dto.BacktestConfig{
		InitialCapital:     file.InitialCapital,
		Commission:         file.Commission,
		Slippage:           file.Slippage,
		Benchmark:          strings.ToUpper(file.Benchmark),
		RebalanceFrequency: dto.RebalanceFrequency(file.RebalanceFrequency),
		Timeframe:          dto.Timeframe(file.Timeframe),
		SharedCapital:      file.SharedCapital,
		IncludeEquityCurve: file.IncludeEquityCurve || flags.outPath != "",
	}
	var err error
	if cfg.StartDate, err = utils.ParseDate(file.StartDate); err != nil {
		return dto.BacktestConfig{}, engine.NewValidationError("start_date", "%v", err)
	}
	if cfg.EndDate, err = utils.ParseDate(file.EndDate); err != nil {
		return dto.BacktestConfig{}, engine.NewValidationError("end_date", "%v", err)
	}
	return cfg, nil
}

// parseBarFlags turns SYMBOL=path pairs into a symbol to file map.
func parseBarFlags(values []string) (map[string]string, error) {
	files := make(map[string]string, len(values))
	for _, v := range values {
		sym, path, ok := strings.Cut(v, "=")
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if !ok || sym == "" || path == "" {
			return nil, fmt.Errorf("invalid --bars value %q, want SYMBOL=path", v)
		}
		if _, dup := files[sym]; dup {
			return nil, fmt.Errorf("symbol %s given twice in --bars", sym)
		}
		files[sym] = path
	}
	return files, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func yamlToJSON(data []byte) ([]byte, error) {
	var v interface{}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func printResults(out io.Writer, results []dto.BacktestResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tTRADES\tRETURN\tANNUALIZED\tMAX DD\tSHARPE\tWIN RATE\tFINAL EQUITY")
	for _, r := range results {
		m := r.Metrics
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%.2f\t%s\t%.2f\n",
			r.Symbol,
			m.TotalTrades,
			utils.FormatPercentage(m.TotalReturn),
			utils.FormatPercentage(m.AnnualizedReturn),
			utils.FormatPercentage(m.MaxDrawdown),
			m.SharpeRatio,
			utils.FormatPercentage(m.WinRate),
			r.FinalEquity,
		)
	}
	_ = w.Flush()
}
