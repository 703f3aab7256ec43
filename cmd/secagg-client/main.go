// Command secagg-client takes part in a secure aggregation session.
//
// The input is read from a file holding one integer per line, or sampled at
// random below 2^input_bits.
//
// # Usage
//
//	go run ./cmd/secagg-client --config session.yaml --input input.txt
package main

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/taurusgroup/secagg/pkg/math/sample"
	"github.com/taurusgroup/secagg/pkg/params"
	"github.com/taurusgroup/secagg/pkg/party"
	"github.com/taurusgroup/secagg/pkg/pool"
	"github.com/taurusgroup/secagg/pkg/transport/httpbus"
	"github.com/taurusgroup/secagg/protocols/secagg/participant"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "secagg-client",
		Usage: "contribute an input to a secure aggregation session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "session YAML file"},
			&cli.StringFlag{Name: "id", Usage: "client identity, random if empty"},
			&cli.StringFlag{Name: "unicast", Value: "http://127.0.0.1:5555", Usage: "coordinator unicast URL"},
			&cli.StringFlag{Name: "publish", Value: "http://127.0.0.1:5556", Usage: "coordinator publish URL"},
			&cli.StringFlag{Name: "input", Usage: "file with one integer per line"},
			&cli.IntFlag{Name: "workers", Usage: "sharing workers, 0 for one per CPU"},
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
	lvl, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logger := zerolog.New(zerolog.NewConsoleWriter()).Level(lvl).With().Timestamp().Logger()

	session := params.DefaultSession()
	if path := c.String("config"); path != "" {
		if session, err = params.LoadSession(path); err != nil {
			return err
		}
	}

	var input []uint64
	if path := c.String("input"); path != "" {
		if input, err = readInput(path); err != nil {
			return err
		}
	} else {
		input = sample.Bounded(rand.Reader, session.VectorSize, session.InputBits)
	}

	id := party.ID(c.String("id"))
	if id == "" {
		id = party.NewID()
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pl := pool.NewPool(c.Int("workers"))
	defer pl.TearDown()

	conn := httpbus.Dial(id, c.String("unicast"), c.String("publish"))
	out, err := participant.Run(ctx, participant.Config{
		ID:      id,
		Session: session,
		Log:     &logger,
		Pool:    pl,
	}, conn, conn, input)
	if err != nil {
		return err
	}
	logger.Info().Int("index", out.Index).Ints("dropouts", out.Dropouts).Msg("aggregate submitted")
	return nil
}

func readInput(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []uint64
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		x, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, x)
	}
	return out, scanner.Err()
}
