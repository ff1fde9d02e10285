package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/dr-vortex/annihilation/internal/auth"
	"github.com/dr-vortex/annihilation/internal/config"
	"github.com/dr-vortex/annihilation/internal/logging"
	persistlog "github.com/dr-vortex/annihilation/internal/persistence/log"
	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
	"github.com/dr-vortex/annihilation/internal/persistence/store"
	"github.com/dr-vortex/annihilation/internal/protocol"
	"github.com/dr-vortex/annihilation/internal/sim/catalogs"
	"github.com/dr-vortex/annihilation/internal/sim/geom"
	"github.com/dr-vortex/annihilation/internal/sim/level"
	"github.com/dr-vortex/annihilation/internal/sim/tuning"
	"github.com/dr-vortex/annihilation/internal/transport/broadcast"
	"github.com/dr-vortex/annihilation/internal/transport/ws"
)

func main() {
	var (
		envFile    = flag.String("env", ".env", "dotenv file (missing is fine)")
		addr       = flag.String("addr", "", "http listen address (default: ANNIHILATION_ADDR)")
		dataDir    = flag.String("data", "", "runtime data directory (default: ANNIHILATION_DATA_DIR)")
		configDir  = flag.String("configs", "", "catalog directory (default: ANNIHILATION_CONFIG_DIR, embedded catalogs when absent)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		snapPath   = flag.String("snapshot", "", "snapshot file to resume from (optional)")
		fresh      = flag.Bool("fresh", false, "ignore saved state and generate a new level")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	overrideString(&cfg.Addr, *addr)
	overrideString(&cfg.DataDir, *dataDir)
	overrideString(&cfg.ConfigDir, *configDir)

	logger, err := logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg, *tuningPath, *snapPath, *fresh, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, tuningPath, snapPath string, fresh bool, logger *slog.Logger) error {
	cats, err := loadCatalogs(cfg.ConfigDir, logger)
	if err != nil {
		return err
	}
	tp := strings.TrimSpace(tuningPath)
	if tp == "" {
		tp = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load tuning: %w", err)
		}
		logger.Info("tuning not found; using defaults", "path", tp)
		tune = tuning.Defaults()
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	dsn := cfg.Store.DSN
	if cfg.Store.Driver == store.DriverSQLite && dsn == "" {
		dsn = filepath.Join(cfg.DataDir, "annihilation.sqlite")
	}
	st, err := store.Open(ctx, cfg.Store.Driver, dsn, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.UpsertCatalogs(ctx, cats, tune); err != nil {
		logger.Warn("store: upsert catalogs", "err", err)
	}

	lvl, err := openLevel(ctx, cfg, st, snapPath, fresh, cats, tune, logger)
	if err != nil {
		return err
	}
	levelDir := filepath.Join(cfg.DataDir, "levels", lvl.ID)
	if err := os.MkdirAll(levelDir, 0o755); err != nil {
		return err
	}

	loop := level.NewLoop(lvl, level.LoopConfig{
		TickRateHz:          tune.TickRateHz,
		SnapshotEveryTicks:  tune.SnapshotEveryTicks,
		BroadcastEveryTicks: tune.BroadcastEveryTicks,
	}, logger)

	// Event fan-out is registered before the loop starts; afterwards the
	// level is only touched from the loop goroutine.
	var (
		events  *persistlog.EventJournal
		actions *persistlog.ActionJournal
	)
	if cfg.Journal {
		events = persistlog.NewEventJournal(levelDir)
		actions = persistlog.NewActionJournal(levelDir)
		defer events.Close()
		defer actions.Close()
	}
	lvl.Subscribe(eventSink{levelID: lvl.ID, journal: events, store: st, log: logger}.handle)

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if !issuer.Enabled() {
		logger.Warn("JWT_SECRET unset; sessions pick their own player id")
	}
	digests, err := st.CatalogDigests(ctx)
	if err != nil {
		logger.Warn("store: catalog digests", "err", err)
	}
	wsOpts := ws.Options{
		ActionsPerSecond: cfg.Limits.ActionsPerSecond,
		ActionBurst:      cfg.Limits.ActionBurst,
		MaxSessions:      cfg.Limits.MaxSessions,
		Params: protocol.LevelParams{
			TickRateHz:          tune.TickRateHz,
			BroadcastEveryTicks: tune.BroadcastEveryTicks,
		},
		Catalogs: catalogDigests(digests),
		Auth:     issuer,
	}
	if actions != nil {
		wsOpts.Actions = actions
	}
	wsSrv := ws.NewServer(loop, lvl.ID, wsOpts, logger)
	lvl.Subscribe(wsSrv.OnEvent)

	var mirror *broadcast.Redis
	if cfg.Redis.Enabled {
		mirror, err = broadcast.Connect(ctx, cfg.Redis.URL, cfg.Redis.Prefix, lvl.ID, logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer mirror.Close()
		wsSrv.AddListener(mirror)
		logger.Info("redis broadcast enabled", "events", mirror.EventsChannel(), "diffs", mirror.DiffsChannel())
	}

	snapCh := make(chan *snapshot.Level, 2)
	loop.SetSnapshotSink(snapCh)
	saver := &saver{dir: filepath.Join(levelDir, "snapshots"), store: st, log: logger.With("component", "saver")}
	// The loop outlives the signal context so the final save still sees it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	saverDone := make(chan struct{})
	go func() {
		defer close(saverDone)
		saver.run(loopCtx, snapCh)
	}()

	broadcasts := make(chan *snapshot.Level, 2)
	loop.SetBroadcastSink(broadcasts)
	go wsSrv.Run(loopCtx, broadcasts)

	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(loopCtx) }()

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}).Handler(newMux(loop, wsSrv, mirror, lvl.ID, logger))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "level_id", lvl.ID, "tick", lvl.Tick())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			cancel()
			return fmt.Errorf("listen: %w", err)
		}
	case err := <-loopErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("level loop stopped", "err", err)
		}
	}
	logger.Info("shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), cfg.Shutdown)
	defer scancel()
	_ = srv.Shutdown(sctx)

	final, err := loop.Snapshot(sctx)
	stopLoop()
	<-loop.Done()
	<-saverDone
	if errors.Is(err, level.ErrLoopStopped) {
		// The loop goroutine is gone; the level is ours now.
		final, err = lvl.Snapshot(), nil
	}
	if err != nil {
		logger.Warn("final snapshot", "err", err)
	} else {
		saver.save(final)
	}
	if err := st.Flush(sctx); err != nil {
		logger.Warn("store: flush events", "err", err)
	}
	return nil
}

func loadCatalogs(dir string, logger *slog.Logger) (*catalogs.Catalogs, error) {
	if dir != "" {
		if _, err := os.Stat(filepath.Join(dir, "items.yaml")); err == nil {
			cats, err := catalogs.Load(dir)
			if err != nil {
				return nil, fmt.Errorf("load catalogs: %w", err)
			}
			return cats, nil
		}
	}
	logger.Info("using embedded catalogs", "dir", dir)
	return catalogs.Default()
}

// openLevel resumes from an explicit snapshot file, else from the newest save
// in the store, else from the newest snapshot file on disk, else generates a
// fresh level.
func openLevel(ctx context.Context, cfg config.Config, st *store.Store, snapPath string, fresh bool, cats *catalogs.Catalogs, tune tuning.Tuning, logger *slog.Logger) (*level.Level, error) {
	var snap *snapshot.Level
	var from string
	switch {
	case fresh:
	case snapPath != "":
		s, err := snapshot.ReadFile(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		snap, from = s, snapPath
	default:
		s, info, err := st.Latest(ctx, cfg.LevelID)
		switch {
		case err == nil:
			snap, from = s, "store:"+info.ID
		case errors.Is(err, store.ErrNotFound):
			if cfg.LevelID != "" {
				if p := latestSnapshot(filepath.Join(cfg.DataDir, "levels", cfg.LevelID, "snapshots")); p != "" {
					if s, err := snapshot.ReadFile(p); err == nil {
						snap, from = s, p
					} else {
						logger.Warn("skip unreadable snapshot", "path", p, "err", err)
					}
				}
			}
		default:
			return nil, fmt.Errorf("latest save: %w", err)
		}
	}

	if snap != nil {
		if cfg.LevelID != "" && snap.ID != cfg.LevelID {
			return nil, fmt.Errorf("snapshot level id mismatch: want %s, got %s", cfg.LevelID, snap.ID)
		}
		lvl, err := level.Restore(snap, cats, tune, logger)
		if err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
		logger.Info("resumed level", "from", from, "level_id", lvl.ID, "tick", lvl.Tick())
		return lvl, nil
	}

	lvl := level.New(level.Config{
		ID:     cfg.LevelID,
		Name:   cfg.LevelName,
		Seed:   cfg.Seed,
		Logger: logger,
	}, cats, tune)
	for i := 0; i < cfg.Systems; i++ {
		name := fmt.Sprintf("%s %d", cfg.LevelName, i+1)
		if _, err := lvl.GenerateSystem(name, geom.Vec2{X: float64(i) * systemSpacing}); err != nil {
			return nil, fmt.Errorf("generate system: %w", err)
		}
	}
	logger.Info("generated level", "level_id", lvl.ID, "systems", cfg.Systems, "seed", cfg.Seed)
	return lvl, nil
}

const systemSpacing = 250

func catalogDigests(m map[string]string) protocol.CatalogDigests {
	return protocol.CatalogDigests{
		Items:        m["items"],
		Ships:        m["ships"],
		Hardpoints:   m["hardpoints"],
		Research:     m["research"],
		StationParts: m["station_parts"],
		Bodies:       m["bodies"],
		Tuning:       m["tuning"],
	}
}

func overrideString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
