// batchorders places or cancels a list of orders through the batch manager
// and prints one line per order.
//
// Usage:
//
//	go run ./cmd/batchorders -config configs/kalshi.yaml -orders orders.json
//	go run ./cmd/batchorders -config configs/kalshi.yaml -cancel ORDER_ID_1,ORDER_ID_2
//
// orders.json holds a JSON array of create order requests, for example
//
//	[{"ticker": "KXBTC-25DEC31-B100000", "side": "yes", "action": "buy", "count": 1, "type": "limit", "yes_price": 40}]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rickgao/kalshi-trade/internal/api"
	"github.com/rickgao/kalshi-trade/internal/auth"
	"github.com/rickgao/kalshi-trade/internal/batch"
	"github.com/rickgao/kalshi-trade/internal/config"
	"github.com/rickgao/kalshi-trade/internal/database"
	"github.com/rickgao/kalshi-trade/internal/journal"
	"github.com/rickgao/kalshi-trade/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/kalshi.yaml", "path to config file")
	ordersPath := flag.String("orders", "", "JSON file of orders to place")
	cancelList := flag.String("cancel", "", "comma separated order ids to cancel")
	validateOnly := flag.Bool("validate", false, "check the orders locally without sending them")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	checkMarkets := flag.Bool("check-markets", true, "refuse orders on markets that are not open")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	logger.Info("starting batchorders", version.Attr())

	if (*ordersPath == "") == (*cancelList == "") {
		logger.Error("exactly one of -orders or -cancel is required")
		os.Exit(2)
	}

	var orders []api.CreateOrderRequest
	if *ordersPath != "" {
		orders, err = readOrders(*ordersPath)
		if err != nil {
			logger.Error("failed to read orders", "path", *ordersPath, "error", err)
			os.Exit(1)
		}
	}

	if *validateOnly {
		os.Exit(validate(os.Stdout, orders))
	}

	if !cfg.API.HasCredentials() {
		logger.Error("api.api_key and api.private_key_path are required to trade")
		os.Exit(1)
	}
	creds, err := auth.LoadCredentials(cfg.API.APIKey, cfg.API.PrivateKeyPath)
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}

	batchCfg, err := cfg.BatchConfig()
	if err != nil {
		logger.Error("invalid batch config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := api.NewClient(cfg.API.RestURL, creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	status, err := client.GetExchangeStatus(ctx)
	if err != nil {
		logger.Error("failed to get exchange status", "error", err)
		os.Exit(1)
	}
	if !status.TradingActive {
		logger.Error("trading is not active", "exchange_active", status.ExchangeActive, "resume", status.EstimatedResumeTime)
		os.Exit(1)
	}

	if len(orders) > 0 && *checkMarkets {
		if err := checkOpen(ctx, client, orders); err != nil {
			logger.Error("market check failed", "error", err)
			os.Exit(1)
		}
	}

	mgr, err := batch.New(client, batchCfg, logger)
	if err != nil {
		logger.Error("failed to create batch manager", "error", err)
		os.Exit(1)
	}

	op := journal.OpCreate
	var result batch.Result
	var runErr error
	if *ordersPath != "" {
		result, runErr = mgr.Submit(ctx, orders)
	} else {
		op = journal.OpCancel
		result, runErr = mgr.Cancel(ctx, splitList(*cancelList))
	}

	printResult(os.Stdout, op, result)

	if cfg.Journal.Enabled {
		// The batch may have ended on ctx; the journal write gets its own deadline.
		jctx, jcancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer jcancel()
		if err := record(jctx, cfg.Journal.Database, op, result, logger); err != nil {
			logger.Error("failed to journal outcomes", "error", err)
		}
	}

	failed := len(result.Failed())
	logger.Info("batch finished",
		"op", op,
		"total", len(result),
		"succeeded", result.Succeeded(),
		"failed", failed,
	)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("batch interrupted", "error", runErr)
	}
	if runErr != nil || failed > 0 {
		os.Exit(1)
	}
}

func readOrders(path string) ([]api.CreateOrderRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var orders []api.CreateOrderRequest
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("parse orders: %w", err)
	}
	return orders, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

// checkOpen fails when any order targets a market that is unknown or not
// trading.
func checkOpen(ctx context.Context, client *api.Client, orders []api.CreateOrderRequest) error {
	seen := make(map[string]bool)
	var tickers []string
	for _, o := range orders {
		if o.Ticker != "" && !seen[o.Ticker] {
			seen[o.Ticker] = true
			tickers = append(tickers, o.Ticker)
		}
	}
	if len(tickers) == 0 {
		return nil
	}

	markets, err := client.ListMarkets(ctx, api.GetMarketsOptions{Tickers: tickers})
	if err != nil {
		return err
	}
	status := make(map[string]string, len(markets))
	for _, m := range markets {
		status[m.Ticker] = m.Status
	}

	var bad []string
	for _, t := range tickers {
		switch st, ok := status[t]; {
		case !ok:
			bad = append(bad, t+" (not found)")
		case st != "active" && st != "open":
			bad = append(bad, t+" ("+st+")")
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("markets not open: %s", strings.Join(bad, ", "))
	}
	return nil
}

// validate prints local validation errors and returns the exit code.
func validate(w io.Writer, orders []api.CreateOrderRequest) int {
	code := 0
	for i, o := range orders {
		if err := o.Validate(); err != nil {
			fmt.Fprintf(w, "%d\t%s\tinvalid: %v\n", i, o.Ticker, err)
			code = 1
			continue
		}
		fmt.Fprintf(w, "%d\t%s\tok\n", i, o.Ticker)
	}
	return code
}

func printResult(w io.Writer, op string, result batch.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if op == journal.OpCreate {
		fmt.Fprintln(tw, "#\tTICKER\tCLIENT ORDER ID\tORDER ID\tSTATUS")
	} else {
		fmt.Fprintln(tw, "#\tORDER ID\tREDUCED BY\tSTATUS")
	}
	for _, o := range result {
		status := "ok"
		if o.Order != nil && o.Order.Status != "" {
			status = o.Order.Status
		}
		if o.Err != nil {
			status = "error: " + o.Err.Error()
		}
		if op == journal.OpCreate {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", o.Index, o.Request.Ticker, o.Request.ClientOrderID, o.OrderID, status)
		} else {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", o.Index, o.OrderID, o.ReducedBy, status)
		}
	}
}

func record(ctx context.Context, dbCfg config.DBConfig, op string, result batch.Result, logger *slog.Logger) error {
	pool, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := journal.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	inserted, err := journal.NewOutcomeRecorder(pool, logger).Record(ctx, op, result)
	if err != nil {
		return err
	}
	logger.Info("journaled outcomes", "inserted", inserted, "total", len(result))
	return nil
}
