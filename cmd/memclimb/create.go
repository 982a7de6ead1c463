package main

import (
	"context"
	"fmt"
	"io"

	"github.com/oklog/ulid/v2"

	"github.com/danshapiro/memclimb/internal/audit"
	"github.com/danshapiro/memclimb/internal/chain"
	"github.com/danshapiro/memclimb/internal/checkpoint"
	"github.com/danshapiro/memclimb/internal/escconf"
)

// runCreate handles both `create` and `create-array`. A chain id is
// generated when the caller does not assign one. An existing checkpoint
// with the same id is overwritten, which doubles as the reset path for a
// finished chain.
func runCreate(args []string, array bool, stdout, stderr io.Writer) int {
	var configPath, checkpointDir, chainID, script, arraySpec, dbPath string
	var totalTasks int
	var scriptArgs []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			v, ok := flagValue(args, &i, "--config", stderr)
			if !ok {
				return 1
			}
			configPath = v
		case "--checkpoint-dir":
			v, ok := flagValue(args, &i, "--checkpoint-dir", stderr)
			if !ok {
				return 1
			}
			checkpointDir = v
		case "--chain-id":
			v, ok := flagValue(args, &i, "--chain-id", stderr)
			if !ok {
				return 1
			}
			chainID = v
		case "--script":
			v, ok := flagValue(args, &i, "--script", stderr)
			if !ok {
				return 1
			}
			script = v
		case "--array-spec":
			v, ok := flagValue(args, &i, "--array-spec", stderr)
			if !ok {
				return 1
			}
			arraySpec = v
		case "--total-tasks":
			n, ok := flagInt(args, &i, "--total-tasks", stderr)
			if !ok {
				return 1
			}
			totalTasks = n
		case "--db":
			v, ok := flagValue(args, &i, "--db", stderr)
			if !ok {
				return 1
			}
			dbPath = v
		case "--":
			scriptArgs = args[i+1:]
			i = len(args)
		default:
			fmt.Fprintf(stderr, "unknown arg: %s\n", args[i])
			return 1
		}
	}

	if configPath == "" || checkpointDir == "" || script == "" {
		usage()
		return 1
	}
	if array && (arraySpec == "" || totalTasks <= 0) {
		fmt.Fprintln(stderr, "create-array requires --array-spec and --total-tasks")
		return 1
	}

	cfg, err := escconf.Load(configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if chainID == "" {
		chainID = "chain-" + ulid.Make().String()
	}

	store := checkpoint.NewStore(checkpointDir)
	tracker := chain.NewTracker(store)
	params := chain.CreateParams{
		ChainID:        chainID,
		Script:         script,
		ScriptArgs:     scriptArgs,
		Levels:         cfg.Levels,
		TrackerBaseDir: cfg.Tracker.BaseDir,
	}
	if array {
		params.ArraySpec = arraySpec
		params.TotalTasks = totalTasks
	}

	rec, err := tracker.Create(params)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if dbPath == "" && cfg.Logging.Enabled {
		dbPath = cfg.Logging.DBPath
	}
	withAudit(dbPath, stderr, func(ctx context.Context, db *audit.Store) error {
		if err := db.CreateChain(ctx, rec); err != nil {
			return err
		}
		raw, err := rawConfig(configPath)
		if err != nil {
			return err
		}
		return db.SaveConfigSnapshot(ctx, chainID, raw, cfg.Levels)
	})

	fmt.Fprintf(stdout, "CHAIN_ID=%s\n", shellQuote(chainID))
	fmt.Fprintf(stdout, "CHECKPOINT_FILE=%s\n", shellQuote(store.Path(chainID)))
	return 0
}
