package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/defispring/allocation-merkle-go/pkg/allocation"
	"github.com/defispring/allocation-merkle-go/pkg/clients/allocationClient"
	"github.com/defispring/allocation-merkle-go/pkg/config"
	"github.com/defispring/allocation-merkle-go/pkg/ingest"
	"github.com/defispring/allocation-merkle-go/pkg/logger"
	"github.com/defispring/allocation-merkle-go/pkg/server"
	"github.com/defispring/allocation-merkle-go/pkg/snapshot"
)

func main() {
	rawInputFlag := &cli.StringFlag{
		Name:    "raw-input-dir",
		Usage:   "Directory containing raw_<round>.zip archives",
		Value:   "raw_input",
		EnvVars: []string{config.EnvAllocRawInputDir},
	}
	roundFlag := &cli.UintFlag{
		Name:  "round",
		Usage: "Round number; 0 selects the latest round",
		Value: 0,
	}
	addressFlag := &cli.StringFlag{
		Name:     "address",
		Usage:    "Claimant address (0x-prefixed hex or decimal)",
		Required: true,
	}
	urlFlag := &cli.StringFlag{
		Name:  "url",
		Usage: "Base URL of the allocation server",
		Value: "http://localhost:8080",
	}

	app := &cli.App{
		Name:  "allocation-cli",
		Usage: "Inspect cumulative allocation rounds and claim calldata",
		Description: `Offline and remote tooling for cumulative allocation Merkle trees.

Offline commands read raw_<round>.zip archives directly. The query commands
talk to a running allocation-server.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "roots",
				Usage:  "Print every round's root and totals from raw input",
				Flags:  []cli.Flag{rawInputFlag},
				Action: rootsCommand,
			},
			{
				Name:   "calldata",
				Usage:  "Build claim calldata offline from raw input",
				Flags:  []cli.Flag{rawInputFlag, addressFlag, roundFlag},
				Action: calldataCommand,
			},
			{
				Name:  "query",
				Usage: "Query a running allocation server",
				Flags: []cli.Flag{urlFlag},
				Subcommands: []*cli.Command{
					{
						Name:   "calldata",
						Usage:  "Fetch claim calldata for an address",
						Flags:  []cli.Flag{addressFlag, roundFlag},
						Action: queryCalldataCommand,
					},
					{
						Name:   "amount",
						Usage:  "Fetch the cumulative allocation of an address",
						Flags:  []cli.Flag{addressFlag, roundFlag},
						Action: queryAmountCommand,
					},
					{
						Name:   "root",
						Usage:  "Fetch a round's root",
						Flags:  []cli.Flag{roundFlag},
						Action: queryRootCommand,
					},
					{
						Name:   "rounds",
						Usage:  "List the rounds the server has loaded",
						Action: queryRoundsCommand,
					},
					{
						Name:  "refresh",
						Usage: "Ask the server to reload its raw input",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "token",
								Usage:    "Admin bearer token (see admin-token)",
								EnvVars:  []string{"ALLOC_ADMIN_TOKEN"},
								Required: true,
							},
						},
						Action: queryRefreshCommand,
					},
				},
			},
			{
				Name:  "admin-token",
				Usage: "Issue an HS256 admin token for POST /admin/refresh",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "secret",
						Usage:    "Shared HS256 secret configured on the server",
						EnvVars:  []string{config.EnvAllocAdminJWTSecret},
						Required: true,
					},
					&cli.StringFlag{
						Name:  "subject",
						Usage: "Token subject, recorded in server logs",
						Value: "allocation-cli",
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime",
						Value: 15 * time.Minute,
					},
				},
				Action: adminTokenCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

// loadSnapshot builds every round from the local raw input directory.
func loadSnapshot(c *cli.Context, l *zap.Logger) (*snapshot.Snapshot, error) {
	source := ingest.NewLocalSource(c.String("raw-input-dir"), l)
	raw, err := source.Load(c.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to load raw input: %w", err)
	}

	result, err := allocation.Transform(raw, l)
	if err != nil {
		return nil, fmt.Errorf("failed to build rounds: %w", err)
	}

	return &snapshot.Snapshot{
		CreatedAt: time.Now(),
		Source:    source.Name(),
		Rounds:    result.Rounds,
		Stats:     result.Stats,
	}, nil
}

func roundArg(c *cli.Context) (uint8, error) {
	round := c.Uint("round")
	if round > 255 {
		return 0, fmt.Errorf("round must be between 0 and 255, got %d", round)
	}
	return uint8(round), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rootsCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	snap, err := loadSnapshot(c, l)
	if err != nil {
		return err
	}

	l.Sugar().Debugw("Aggregation stats",
		"entries", snap.Stats.Entries,
		"malformedAmounts", snap.Stats.MalformedAmounts,
		"skippedAddresses", snap.Stats.SkippedAddresses,
		"overflowedAmounts", snap.Stats.OverflowedAmounts,
	)
	return printJSON(snap.Summaries())
}

func calldataCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	round, err := roundArg(c)
	if err != nil {
		return err
	}

	snap, err := loadSnapshot(c, l)
	if err != nil {
		return err
	}
	rd, err := snap.Resolve(round)
	if err != nil {
		return err
	}

	calldata, err := rd.Tree.AddressCalldata(c.String("address"))
	if err != nil {
		return fmt.Errorf("round %d: %w", rd.Round, err)
	}
	return printJSON(calldata)
}

func createClient(c *cli.Context, token string) (*allocationClient.Client, error) {
	l, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	return allocationClient.NewClient(&allocationClient.ClientConfig{
		BaseURL:    c.String("url"),
		Logger:     l,
		AdminToken: token,
	})
}

func queryCalldataCommand(c *cli.Context) error {
	round, err := roundArg(c)
	if err != nil {
		return err
	}
	client, err := createClient(c, "")
	if err != nil {
		return err
	}
	calldata, err := client.GetCalldata(c.Context, c.String("address"), round)
	if err != nil {
		return err
	}
	return printJSON(calldata)
}

func queryAmountCommand(c *cli.Context) error {
	round, err := roundArg(c)
	if err != nil {
		return err
	}
	client, err := createClient(c, "")
	if err != nil {
		return err
	}
	amount, err := client.GetAllocationAmount(c.Context, c.String("address"), round)
	if err != nil {
		return err
	}
	fmt.Println(amount)
	return nil
}

func queryRootCommand(c *cli.Context) error {
	round, err := roundArg(c)
	if err != nil {
		return err
	}
	client, err := createClient(c, "")
	if err != nil {
		return err
	}
	root, err := client.GetRoot(c.Context, round)
	if err != nil {
		return err
	}
	fmt.Println(root)
	return nil
}

func queryRoundsCommand(c *cli.Context) error {
	client, err := createClient(c, "")
	if err != nil {
		return err
	}
	rounds, err := client.GetRounds(c.Context)
	if err != nil {
		return err
	}
	return printJSON(rounds)
}

func queryRefreshCommand(c *cli.Context) error {
	client, err := createClient(c, c.String("token"))
	if err != nil {
		return err
	}
	result, err := client.TriggerRefresh(c.Context)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func adminTokenCommand(c *cli.Context) error {
	token, err := server.NewAdminToken([]byte(c.String("secret")), c.String("subject"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
