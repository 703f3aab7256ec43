// Command secagg-coordinator runs the coordinator of one secure aggregation
// session over HTTP, and writes the result as cbor.
//
// Clients send their messages to the unicast address and read broadcasts
// from the publish address.
//
// # Usage
//
//	go run ./cmd/secagg-coordinator --config session.yaml --out result.cbor
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/taurusgroup/secagg/pkg/params"
	"github.com/taurusgroup/secagg/pkg/pool"
	"github.com/taurusgroup/secagg/pkg/transport/httpbus"
	"github.com/taurusgroup/secagg/protocols/secagg/coordinator"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.App{
		Name:  "secagg-coordinator",
		Usage: "run a secure aggregation session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "session YAML file"},
			&cli.StringFlag{Name: "unicast", Value: ":5555", Usage: "listen address for client messages"},
			&cli.StringFlag{Name: "publish", Value: ":5556", Usage: "listen address for broadcasts"},
			&cli.StringFlag{Name: "out", Value: "result.cbor", Usage: "where to write the result"},
			&cli.IntFlag{Name: "max-clients", Usage: "override max_clients"},
			&cli.BoolFlag{Name: "malicious", Usage: "check the clients' inputs"},
			&cli.IntFlag{Name: "workers", Value: 4, Usage: "goroutines handling messages"},
			&cli.DurationFlag{Name: "poll", Value: 10 * time.Second, Usage: "long poll duration"},
			&cli.StringFlag{Name: "seed", Usage: "hex seed making the checks replayable"},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := newLogger(c.String("log-level"))
	if err != nil {
		return err
	}

	session := params.DefaultSession()
	if path := c.String("config"); path != "" {
		if session, err = params.LoadSession(path); err != nil {
			return err
		}
	}
	if c.IsSet("max-clients") {
		session.MaxClients = c.Int("max-clients")
	}
	if c.IsSet("malicious") {
		session.Malicious = c.Bool("malicious")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := httpbus.NewServer(c.Duration("poll"))
	bus.Log = logger
	defer bus.Close()

	unicast := chi.NewRouter()
	unicast.Use(middleware.Logger)
	bus.UnicastRoutes(unicast)
	unicast.Get("/health", health)

	publish := chi.NewRouter()
	publish.Use(middleware.Logger)
	bus.PublishRoutes(publish)
	publish.Get("/health", health)

	servers := []*http.Server{
		{Addr: c.String("unicast"), Handler: unicast, ReadTimeout: 15 * time.Second},
		{Addr: c.String("publish"), Handler: publish, ReadTimeout: 15 * time.Second},
	}

	pl := pool.NewPool(0)
	defer pl.TearDown()
	seed, err := hex.DecodeString(c.String("seed"))
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	coord, err := coordinator.New(coordinator.Config{
		Session: session,
		Log:     &logger,
		Pool:    pl,
		Workers: c.Int("workers"),
		Seed:    seed,
	}, bus, bus)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		defer shutdown(bus, servers)
		result, err := coord.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info().Ints("contributors", result.Contributors).Ints("survivors", result.Survivors).Ints("dropouts", result.Dropouts).Msg("session complete")
		return writeResult(c.String("out"), result)
	})
	return g.Wait()
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func shutdown(bus *httpbus.Server, servers []*http.Server) {
	// let the clients fetch the last acknowledgements
	time.Sleep(time.Second)
	bus.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(ctx)
	}
}

func writeResult(path string, result *coordinator.Result) error {
	data, err := cbor.Marshal(result)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	return zerolog.New(zerolog.NewConsoleWriter()).Level(lvl).With().Timestamp().Logger(), nil
}
