package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/models"
	"github.com/noah-isme/student-records-api/internal/repository"
	"github.com/noah-isme/student-records-api/internal/service"
	"github.com/noah-isme/student-records-api/pkg/cache"
	"github.com/noah-isme/student-records-api/pkg/config"
	"github.com/noah-isme/student-records-api/pkg/database"
	"github.com/noah-isme/student-records-api/pkg/datastore"
	"github.com/noah-isme/student-records-api/pkg/logger"
	"github.com/noah-isme/student-records-api/pkg/tabular"
)

type importOptions struct {
	file   string
	mode   string
	dryRun bool
	strict bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Reconcile a local CSV, XLSX or JSON file with stored student profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Path of the file to ingest (required)")
	cmd.Flags().StringVar(&opts.mode, "mode", string(models.IngestionModeProfile), "Record shape: simple or profile")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Resolve every record without writing")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit non-zero when any record fails")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func parseMode(raw string) (models.IngestionMode, error) {
	switch models.IngestionMode(strings.ToLower(strings.TrimSpace(raw))) {
	case models.IngestionModeSimple:
		return models.IngestionModeSimple, nil
	case models.IngestionModeProfile:
		return models.IngestionModeProfile, nil
	default:
		return "", fmt.Errorf("unsupported --mode: %s", raw)
	}
}

func runImport(ctx context.Context, out io.Writer, opts importOptions) error {
	mode, err := parseMode(opts.mode)
	if err != nil {
		return withCode(exitUsage, err)
	}
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("read %s: %w", opts.file, err))
	}
	if _, err := tabular.Detect(opts.file, data); err != nil {
		return withCode(exitUsage, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return withCode(exitDB, err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	store := datastore.New(db).WithObserver(metrics.ObserveStatement)

	// Cache invalidation keeps the API's trend report in step with CLI imports.
	var cacheSvc *service.CacheService
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, trend cache not invalidated", zap.Error(err))
		} else {
			defer client.Close()
			cacheSvc = service.NewCacheService(repository.NewCacheRepository(client), metrics, cfg.Reports.CacheTTL, logr)
		}
	}

	ingestion := service.NewIngestionService(
		repository.NewStudentRepository(db, store),
		repository.NewProfileRepository(store),
		cacheSvc,
		metrics,
		validator.New(),
		logr,
	)

	summary, err := ingestion.IngestFile(ctx, filepath.Base(opts.file), data, mode, service.IngestOptions{DryRun: opts.dryRun})
	if err != nil {
		return withCode(exitValidation, err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}
	if opts.strict && len(summary.Errors) > 0 {
		return withCode(exitValidation, fmt.Errorf("%d record(s) failed", len(summary.Errors)))
	}
	return nil
}
