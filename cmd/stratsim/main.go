package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vaultstrat/cmd/internal/passphrase"
	"vaultstrat/config"
	"vaultstrat/observability/logging"
	"vaultstrat/storage"
)

const ownerPassEnv = "STRATSIM_OWNER_PASS"

func main() {
	configFile := flag.String("config", "./stratsim.toml", "Path to the configuration file")
	scenarioFile := flag.String("scenario", "", "Path to the YAML scenario to execute")
	memory := flag.Bool("memory", false, "Keep state in memory instead of LevelDB under DataDir")
	flag.Parse()

	if *scenarioFile == "" {
		fmt.Fprintln(os.Stderr, "stratsim: -scenario is required")
		os.Exit(2)
	}

	passSource := passphrase.NewSource(ownerPassEnv, "owner keystore")
	cfg, err := config.Load(*configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		fmt.Fprintf(os.Stderr, "stratsim: failed to load config: %v\n", err)
		os.Exit(1)
	}
	level, err := cfg.LogLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stratsim: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("stratsim", cfg.Environment, logging.Options{
		Level:      level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}).With(slog.String("run", uuid.NewString()))

	if err := run(cfg, *scenarioFile, *memory, logger); err != nil {
		logger.Error("stratsim run failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, scenarioFile string, memory bool, logger *slog.Logger) error {
	ownerKey, err := cfg.OwnerKey()
	if err != nil {
		return fmt.Errorf("unlock owner keystore: %w", err)
	}
	logger.Info("owner identity loaded",
		logging.MaskPath("keystore", cfg.OwnerKeystorePath),
		logging.MaskField(ownerPassEnv, os.Getenv(ownerPassEnv)),
		slog.String("owner", ownerKey.Address().Hex()))

	var db storage.Database
	if memory {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		db = ldb
	}
	defer db.Close()

	var server *http.Server
	if addr := cfg.Metrics.ListenAddress; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener stopped", slog.Any("error", err))
			}
		}()
		logger.Info("metrics listener started", slog.String("address", addr))
	}

	sc, err := LoadScenario(scenarioFile)
	if err != nil {
		return err
	}
	result, err := sc.Run(Environment{
		Store:   db,
		Owner:   ownerKey.Address(),
		Fee:     cfg.FeeTier(),
		Workers: cfg.WorkerAddresses(),
		Pauses:  cfg.Pauses,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("scenario %q: %w", sc.Name, err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if server == nil {
		return nil
	}
	// Keep serving metrics until interrupted.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
