package main

import (
	"fmt"
	"io"

	"github.com/danshapiro/memclimb/internal/escconf"
)

// runLoadConfig parses the escalation config and emits shell variable
// assignments for the driving bash script. A bad document is fatal.
func runLoadConfig(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		usage()
		return 1
	}

	cfg, err := escconf.Load(args[0])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	fmt.Fprintf(stdout, "PARTITION=%s\n", shellQuote(cfg.Partition()))
	fmt.Fprintf(stdout, "MAX_LEVEL=%d\n", cfg.MaxLevel())
	fmt.Fprintln(stdout, "LEVELS_CONFIG=true")
	for i, lvl := range cfg.Levels {
		fmt.Fprintf(stdout, "LEVEL_%d_PARTITION=%s\n", i, shellQuote(lvl.Partition))
		fmt.Fprintf(stdout, "LEVEL_%d_MEM=%s\n", i, shellQuote(lvl.Memory))
		fmt.Fprintf(stdout, "LEVEL_%d_TIME=%s\n", i, shellQuote(lvl.Time))
	}

	if cfg.Timeout.SacctDelay > 0 {
		fmt.Fprintf(stdout, "SACCT_DELAY=%d\n", cfg.Timeout.SacctDelay)
	}
	if cfg.Tracker.BaseDir != "" {
		fmt.Fprintf(stdout, "TRACKER_DIR=%s\n", shellQuote(cfg.Tracker.BaseDir))
	}
	if cfg.Tracker.HistoryLog != "" {
		fmt.Fprintf(stdout, "HISTORY_LOG=%s\n", shellQuote(cfg.Tracker.HistoryLog))
	}
	if cfg.Tracker.CheckpointDir != "" {
		fmt.Fprintf(stdout, "CHECKPOINT_DIR=%s\n", shellQuote(cfg.Tracker.CheckpointDir))
	}
	if cfg.Tracker.OutputDir != "" {
		fmt.Fprintf(stdout, "OUTPUT_DIR=%s\n", shellQuote(cfg.Tracker.OutputDir))
	}

	if cfg.Logging.Enabled {
		fmt.Fprintln(stdout, "LOGGING_ENABLED=true")
	} else {
		fmt.Fprintln(stdout, "LOGGING_ENABLED=false")
	}
	if cfg.Logging.DBPath != "" {
		fmt.Fprintf(stdout, "LOGGING_DB_PATH=%s\n", shellQuote(cfg.Logging.DBPath))
		fmt.Fprintf(stdout, "DB_PATH=%s\n", shellQuote(cfg.Logging.DBPath))
	}

	if cfg.MaxArraySpecLen > 0 {
		fmt.Fprintf(stdout, "MAX_ARRAY_SPEC_LEN=%d\n", cfg.MaxArraySpecLen)
	}
	if cfg.Cluster.Name != "" {
		fmt.Fprintf(stdout, "CLUSTER_NAME=%s\n", shellQuote(cfg.Cluster.Name))
	}
	if cfg.Cluster.Partition != "" {
		fmt.Fprintf(stdout, "CLUSTER_PARTITION=%s\n", shellQuote(cfg.Cluster.Partition))
	}
	if cfg.Cluster.Nodes != "" {
		fmt.Fprintf(stdout, "CLUSTER_NODES=%s\n", shellQuote(cfg.Cluster.Nodes))
	}
	return 0
}
