// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/blinklabs-io/steward/database/models"
)

// Config holds the database configuration
type Config struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	DataDir      string
	Tracing      bool
}

// Database combines the two persistence backends behind a data store: a
// SQLite metadata database for structured state (registry, resources,
// proposal archive) and a badger blob database for the nested keyed records.
// Both run in memory when no data directory is configured.
type Database struct {
	logger       *slog.Logger
	metadata     *gorm.DB
	blob         *badger.DB
	promRegistry prometheus.Registerer
	dataDir      string
}

// New creates a new database. Uses in-memory backends if DataDir is empty.
func New(cfg *Config) (*Database, error) {
	logger := cfg.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.DataDir != "" {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(cfg.DataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(cfg.DataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
	}
	metadataDb, err := openMetadata(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}
	if cfg.Tracing {
		if err := metadataDb.Use(
			tracing.NewPlugin(tracing.WithoutMetrics()),
		); err != nil {
			return nil, fmt.Errorf("failed to enable metadata tracing: %w", err)
		}
	}
	blobDb, err := openBlob(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob database: %w", err)
	}
	db := &Database{
		logger:       logger,
		metadata:     metadataDb,
		blob:         blobDb,
		promRegistry: cfg.PromRegistry,
		dataDir:      cfg.DataDir,
	}
	// Create table schemas
	for _, model := range models.MigrateModels {
		db.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := db.metadata.AutoMigrate(model); err != nil {
			return db, err
		}
	}
	return db, nil
}

func openMetadata(dataDir string) (*gorm.DB, error) {
	if dataDir == "" {
		// Use in-memory database when no data directory is specified, useful for testing
		// cache=shared allows multiple connections to share the same in-memory database
		return gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
	}
	metadataDbPath := filepath.Join(
		dataDir,
		"metadata.sqlite",
	)
	// WAL journal mode, disable sync on write
	metadataConnOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)"
	return gorm.Open(
		sqlite.Open(
			fmt.Sprintf("file:%s?%s", metadataDbPath, metadataConnOpts),
		),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
}

func openBlob(dataDir string, logger *slog.Logger) (*badger.DB, error) {
	if dataDir == "" {
		badgerOpts := badger.DefaultOptions("").
			WithLogger(NewBadgerLogger(logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true)
		return badger.Open(badgerOpts)
	}
	blobDir := filepath.Join(
		dataDir,
		"blob",
	)
	badgerOpts := badger.DefaultOptions(blobDir).
		WithLogger(NewBadgerLogger(logger)).
		WithLoggingLevel(badger.WARNING)
	return badger.Open(badgerOpts)
}

// Metadata returns the underlying gorm DB for the metadata database
func (d *Database) Metadata() *gorm.DB {
	return d.metadata
}

// Blob returns the underlying badger DB for the blob database
func (d *Database) Blob() *badger.DB {
	return d.blob
}

// resolveDB returns the given transaction, or the base metadata DB when txn
// is nil. Metadata accessors accept a nil transaction for one-shot use.
func (d *Database) resolveDB(txn *gorm.DB) *gorm.DB {
	if txn != nil {
		return txn
	}
	return d.metadata
}

// Transaction runs fn inside a single metadata transaction
func (d *Database) Transaction(fn func(txn *gorm.DB) error) error {
	return d.metadata.Transaction(fn)
}

// Close shuts down both backends
func (d *Database) Close() error {
	var err error
	if d.metadata != nil {
		sqlDB, sqlErr := d.metadata.DB()
		if sqlErr == nil {
			err = errors.Join(err, sqlDB.Close())
		} else {
			err = errors.Join(err, sqlErr)
		}
	}
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}
