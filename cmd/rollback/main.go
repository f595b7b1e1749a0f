// Command rollback is the node core's one CLI example tool: it rolls the
// header chain and its commitments back from one block number to an
// earlier one, verifying the target block's stored global root against
// the commitment trie before purging anything.
//
// Usage: rollback <db-path> <from-number> <to-number>
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/eth2030/starknet-core/chain"
	applog "github.com/eth2030/starknet-core/log"
	"github.com/eth2030/starknet-core/metrics"
	"github.com/eth2030/starknet-core/nodecfg"
	"github.com/eth2030/starknet-core/nodestore"
	"github.com/eth2030/starknet-core/statetrie"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg := nodecfg.DefaultConfig()

	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	fs.IntVar(&cfg.Verbosity, "verbosity", cfg.Verbosity, "log level 0-5 (0-1=error, 2=warn, 3=info, 4-5=debug)")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "base directory a relative db-path is resolved against")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "dump collected metrics to stderr on completion")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	cfg.LogLevel = nodecfg.VerbosityToLogLevel(cfg.Verbosity)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	rest := fs.Args()
	if len(rest) != 3 {
		fmt.Fprintln(os.Stderr, "usage: rollback [-verbosity N] [-datadir DIR] <db-path> <from-number> <to-number>")
		return 2
	}
	dbPath := cfg.ResolvePath(rest[0])
	from, to, err := parseRange(rest[1], rest[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	level := verbosityToSlogLevel(cfg.Verbosity)
	gethlog.SetDefault(gethlog.NewLogger(gethlog.NewTerminalHandlerWithLevel(os.Stderr, level, true)))
	applog.Setup(os.Stderr, level)
	applog.Info("rollback: starting", "db", dbPath, "from", from, "to", to)

	if err := rollback(dbPath, from, to); err != nil {
		applog.Error("rollback: failed", "err", err)
		return 1
	}
	applog.Info("rollback: completed", "from", from, "to", to)
	if cfg.Metrics {
		if err := metrics.DefaultRegistry.WriteText(os.Stderr, "STARKNODE"); err != nil {
			applog.Error("rollback: metrics dump failed", "err", err)
		}
	}
	return 0
}

func verbosityToSlogLevel(v int) slog.Level {
	switch {
	case v <= 1:
		return slog.LevelError
	case v == 2:
		return slog.LevelWarn
	case v == 3:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func parseRange(fromArg, toArg string) (from, to uint64, err error) {
	if _, err = fmt.Sscanf(fromArg, "%d", &from); err != nil {
		return 0, 0, fmt.Errorf("invalid from-number %q: %w", fromArg, err)
	}
	if _, err = fmt.Sscanf(toArg, "%d", &to); err != nil {
		return 0, 0, fmt.Errorf("invalid to-number %q: %w", toArg, err)
	}
	if from <= to {
		return 0, 0, fmt.Errorf("from-number (%d) must be greater than to-number (%d)", from, to)
	}
	return from, to, nil
}

// rollback verifies the target block's recorded storage commitment against
// the trie rooted at its stored root index, then purges every block in
// (to, from] in descending order. Full reverse-diff replay (as in the
// original project's example tool) would require a per-write update-history
// table that this node store's schema does not carry; this tool instead
// trusts each block's already-committed trie root and purges forward state
// back to it, failing closed if the target root cannot be verified.
func rollback(dbPath string, from, to uint64) error {
	db, err := nodestore.OpenPebble(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	store := nodestore.NewStore(db)
	c := chain.New(store)

	latestPresent, err := store.BlockExists(from)
	if err != nil {
		return fmt.Errorf("checking from-block: %w", err)
	}
	if !latestPresent {
		return fmt.Errorf("block %d is not present locally", from)
	}

	toHeader, err := store.HeaderByNumber(to)
	if err != nil {
		return fmt.Errorf("loading target header %d: %w", to, err)
	}

	rootIndex, err := store.GetStorageRoot(to)
	if err != nil {
		return fmt.Errorf("loading target storage root index: %w", err)
	}
	rootHash, err := store.GetTrieNodeHash(nodestore.StorageTrie, rootIndex)
	if err != nil {
		return fmt.Errorf("loading target storage root hash: %w", err)
	}
	tree := statetrie.OpenStorageCommitment(store, rootIndex, rootHash, true)
	if root := tree.Root(); !root.Equal(toHeader.StorageCommitment) {
		return fmt.Errorf("storage commitment mismatch at block %d: trie root %s, header %s",
			to, root.Hex(), toHeader.StorageCommitment.Hex())
	}

	for n := from; n > to; n-- {
		if err := c.Purge(n); err != nil {
			return fmt.Errorf("purging block %d: %w", n, err)
		}
	}
	return nil
}
