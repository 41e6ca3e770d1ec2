// streamtest connects to the Kalshi websocket, subscribes to the requested
// channels and prints every update to the console.
//
// Usage:
//
//	go run ./cmd/streamtest -config configs/kalshi.yaml -channels ticker,trade -tickers KXBTC-25DEC31-B100000
//
// Private channels (fill, market_positions, communications) need api.api_key
// and api.private_key_path in the config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/kalshi-trade/internal/api"
	"github.com/rickgao/kalshi-trade/internal/auth"
	"github.com/rickgao/kalshi-trade/internal/broadcast"
	"github.com/rickgao/kalshi-trade/internal/config"
	"github.com/rickgao/kalshi-trade/internal/database"
	"github.com/rickgao/kalshi-trade/internal/journal"
	"github.com/rickgao/kalshi-trade/internal/stream"
	"github.com/rickgao/kalshi-trade/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults when empty)")
	channelList := flag.String("channels", "ticker", "comma separated channels")
	tickerList := flag.String("tickers", "", "comma separated market tickers")
	verbose := flag.Bool("verbose", false, "print every orderbook delta")
	seed := flag.Bool("seed", false, "print the REST orderbook of each ticker before streaming")
	reconnect := flag.Bool("reconnect", true, "resubscribe on a new session after the connection is lost")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamtest", version.Attr())

	channels, err := parseChannels(*channelList)
	if err != nil {
		logger.Error("invalid channels", "error", err)
		os.Exit(1)
	}
	tickers := splitList(*tickerList)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	streamCfg, strategy := cfg.StreamConfig()
	var restSigner api.Signer
	if cfg.API.HasCredentials() {
		creds, err := auth.LoadCredentials(cfg.API.APIKey, cfg.API.PrivateKeyPath)
		if err != nil {
			logger.Error("failed to load credentials", "error", err)
			os.Exit(1)
		}
		streamCfg.Signer = creds
		restSigner = creds
	}

	p := newPrinter(*verbose)

	if *seed {
		client := api.NewClient(cfg.API.RestURL, restSigner, api.WithLogger(logger))
		seedBooks(ctx, client, p, tickers, logger)
	}

	var pool journal.DB
	if cfg.Journal.Enabled {
		dbPool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			logger.Error("failed to connect journal database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
		if err := journal.EnsureSchema(ctx, dbPool); err != nil {
			logger.Error("failed to create journal schema", "error", err)
			os.Exit(1)
		}
		pool = dbPool
	}

	r := &runner{
		cfg:      streamCfg,
		strategy: strategy,
		printer:  p,
		journal:  pool,
		logger:   logger,
	}
	if err := r.run(ctx, channels, tickers, *reconnect); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("streamtest failed", "error", err)
		os.Exit(1)
	}
	logger.Info("streamtest stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

func parseChannels(list string) ([]stream.Channel, error) {
	var channels []stream.Channel
	for _, name := range splitList(list) {
		ch, err := stream.ParseChannel(name)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	if len(channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}
	return channels, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func seedBooks(ctx context.Context, client *api.Client, p *printer, tickers []string, logger *slog.Logger) {
	for _, ticker := range tickers {
		resp, err := client.GetOrderbook(ctx, ticker, 0)
		if err != nil {
			logger.Warn("failed to fetch orderbook", "ticker", ticker, "error", err)
			continue
		}
		fmt.Print("[REST] ")
		p.OrderbookSnapshot(resp.ToSnapshot(ticker))
	}
}

type runner struct {
	cfg      stream.Config
	strategy stream.ConnectStrategy
	printer  *printer
	journal  journal.DB
	logger   *slog.Logger
}

// run owns one session at a time. When a session is lost it opens a new one
// and replays the lost session's subscriptions.
func (r *runner) run(ctx context.Context, channels []stream.Channel, tickers []string, reconnect bool) error {
	b := newReconnectBackOff()

	var snap stream.Snapshot
	for {
		lost, err := r.session(ctx, channels, tickers, snap)
		switch {
		case err != nil && (snap == nil || ctx.Err() != nil):
			return err
		case err != nil:
			// Only a session that already ran once is retried here.
			wait := reconnectWait(b, false)
			r.logger.Warn("reconnect failed", "error", err, "backoff", wait)
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
			continue
		case lost == nil || !reconnect:
			return nil
		}
		if len(lost.Snapshot) > 0 {
			snap = lost.Snapshot
		}

		wait := reconnectWait(b, true)
		r.logger.Warn("connection lost, reconnecting",
			"reason", lost.Reason,
			"subscriptions", len(snap),
			"backoff", wait,
		)
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

func newReconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	return b
}

// reconnectWait returns the delay before the next session. A session that
// subscribed and then ran resets b, so only back to back failures grow it.
func reconnectWait(b *backoff.ExponentialBackOff, ran bool) time.Duration {
	if ran {
		b.Reset()
	}
	return b.NextBackOff()
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// session runs one connection until it closes. It returns the ConnectionLost
// update when the session failed.
func (r *runner) session(ctx context.Context, channels []stream.Channel, tickers []string, snap stream.Snapshot) (*stream.ConnectionLost, error) {
	sess, err := stream.Connect(ctx, r.cfg, r.strategy, r.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			r.logger.Debug("session close", "error", err)
		}
	}()

	updates := sess.Updates()
	defer updates.Close()

	if r.journal != nil {
		w := journal.NewFillWriter(journal.DefaultFillWriterConfig(), sess.Updates(), r.journal, r.logger)
		if err := w.Start(ctx); err != nil {
			return nil, err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := w.Stop(stopCtx); err != nil {
				r.logger.Debug("fill journal stop", "error", err)
			}
			stats := w.Stats()
			r.logger.Info("fill journal", "inserts", stats.Inserts, "conflicts", stats.Conflicts, "errors", stats.Errors)
		}()
	}

	h := sess.Handle()
	var subs []stream.Subscription
	if snap != nil {
		subs, err = h.Resubscribe(ctx, snap)
	} else {
		subs, err = h.SubscribeChannels(ctx, channels, tickers)
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	for _, sub := range subs {
		r.logger.Info("subscribed", "channel", sub.Channel, "sid", sub.SID, "tickers", len(sub.Tickers))
	}

	var lost *stream.ConnectionLost
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lost, err = r.consume(gctx, updates)
		return err
	})
	g.Go(func() error {
		return r.report(gctx, sess, updates)
	})

	err = g.Wait()
	if lost != nil {
		return lost, nil
	}
	if errors.Is(err, errSessionEnded) {
		return nil, nil
	}
	return nil, err
}

var errSessionEnded = errors.New("session ended")

// consume prints updates until the session ends.
func (r *runner) consume(ctx context.Context, updates *broadcast.Receiver[stream.Update]) (*stream.ConnectionLost, error) {
	var lost *stream.ConnectionLost
	for {
		u, err := updates.Recv(ctx)
		var lagged *broadcast.LaggedError
		switch {
		case errors.As(err, &lagged):
			r.logger.Warn("printer lagged", "dropped", lagged.N)
			continue
		case errors.Is(err, broadcast.ErrClosed):
			if lost != nil {
				return lost, nil
			}
			return nil, errSessionEnded
		case err != nil:
			return nil, err
		}

		if u.SeqGap {
			r.logger.Warn("sequence gap", "channel", u.Channel, "sid", u.SID, "seq", u.Seq, "gap", u.GapSize)
		}
		if cl, ok := u.Msg.(stream.ConnectionLost); ok {
			lost = &cl
		}
		u.Msg.Accept(r.printer)
	}
}

// report logs session stats every 30 seconds.
func (r *runner) report(ctx context.Context, sess *stream.Session, updates *broadcast.Receiver[stream.Update]) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return nil
		case <-ticker.C:
			r.logger.Info("stream stats",
				"state", sess.State(),
				"printed", r.printer.count.Load(),
				"queued", updates.Len(),
				"dropped", updates.Dropped(),
			)
		}
	}
}
