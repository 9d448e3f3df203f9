package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"datacat/internal/config"
	"datacat/internal/db"
	"datacat/internal/db/repository"
	"datacat/internal/lake"
	"datacat/internal/service/ingest"
	"datacat/internal/service/ledger"
	"datacat/internal/service/pivot"
)

// app holds the wired catalog: config, logger, metastore pools, lake
// handle, repositories, and services. Commands build one per run and
// close it when done.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	writeDB *sql.DB
	readDB  *sql.DB
	lake    *lake.Lake

	domains    *repository.DomainRepo
	variables  *repository.VariableRepo
	vocabs     *repository.VocabularyRepo
	assets     *repository.AssetRepo
	transforms *repository.TransformationRepo

	ledger *ledger.LedgerService
	ingest *ingest.IngestService
	pivot  *pivot.PivotService
}

func newApp() (*app, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	writeDB, readDB, err := db.OpenSQLitePair(cfg.MetaDBPath, 4)
	if err != nil {
		return nil, fmt.Errorf("open metastore: %w", err)
	}
	if err := db.RunMigrations(writeDB); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("migrate metastore: %w", err)
	}

	lk, err := lake.Open(cfg.LakePath, logger)
	if err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		writeDB: writeDB,
		readDB:  readDB,
		lake:    lk,

		domains:    repository.NewDomainRepo(writeDB),
		variables:  repository.NewVariableRepo(writeDB),
		vocabs:     repository.NewVocabularyRepo(writeDB),
		assets:     repository.NewAssetRepo(writeDB),
		transforms: repository.NewTransformationRepo(writeDB),
	}
	a.ledger = ledger.NewLedgerService(a.assets, logger)
	a.ingest = ingest.NewIngestService(a.ledger, a.domains, a.variables, a.vocabs,
		a.transforms, lk, cfg.LookupThreshold, logger)
	a.pivot = pivot.NewPivotService(a.ledger, a.domains, a.variables,
		a.transforms, lk, logger)
	return a, nil
}

func (a *app) Close() {
	_ = a.lake.Close()
	_ = a.readDB.Close()
	_ = a.writeDB.Close()
}

func loadEnvFile(path string) error {
	if err := config.LoadDotEnv(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
