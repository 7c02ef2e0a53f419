// Command codexcore-state saves or restores the whole system state of a
// codexcore deployment. It resolves the store and archive backends from the
// same configuration the service uses, so an operator can snapshot a live
// database or seed a fresh one from an archived document.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"codexcore/internal/core"
	"codexcore/internal/snapshot"
)

func main() {
	var (
		mode    = flag.String("mode", "save", "save or load the system state")
		key     = flag.String("key", "", "archive key override (default from config)")
		timeout = flag.Duration("timeout", time.Minute, "overall operation timeout")
	)
	flag.Parse()

	if err := run(*mode, *key, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "codexcore-state: %v\n", err)
		os.Exit(1)
	}
}

func run(mode, keyOverride string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := core.LoadConfig()
	if err != nil {
		return err
	}
	store, err := core.OpenNodeStore(cfg.Storage)
	if err != nil {
		return err
	}
	archive, err := core.OpenArchive(ctx, cfg.Archive)
	if err != nil {
		_ = store.Close()
		return err
	}

	key := cfg.Snapshot.Key
	if keyOverride != "" {
		key = keyOverride
	}
	var mgrOpts []snapshot.Option
	if key != "" {
		mgrOpts = append(mgrOpts, snapshot.WithKey(key))
	}
	mgrOpts = append(mgrOpts, snapshot.WithLogger(log))
	mgr := snapshot.NewManager(archive, mgrOpts...)

	svc := core.NewService(store,
		core.WithLogger(log),
		core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("codexcore_state_cli")),
		core.WithSnapshotManager(mgr),
	)
	defer func() { _ = svc.Close() }()

	switch mode {
	case "save":
		if !svc.SaveSystemState(ctx) {
			return fmt.Errorf("save system state failed")
		}
		log.Info("system state archived", zap.String("key", mgr.Key()))
	case "load":
		if !svc.LoadSystemState(ctx) {
			return fmt.Errorf("load system state failed")
		}
		log.Info("system state restored", zap.String("key", mgr.Key()))
	default:
		return fmt.Errorf("unknown mode %q, want save or load", mode)
	}
	return nil
}
