// Package database is the PostgreSQL implementation of storage.Store.
package database

import (
	"context"
	"fmt"
	"time"

	"f0oster/lineage/logging"
	"f0oster/lineage/metrics"
	"f0oster/lineage/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Database struct {
	dsn            string
	managementDsn  string
	ConnectionPool *pgxpool.Pool
	logger         *zap.Logger
}

var _ storage.Store = (*Database)(nil)

func NewDatabase(dsn string, managementDsn string, logger *zap.Logger) *Database {
	return &Database{
		dsn:           dsn,
		managementDsn: managementDsn,
		logger:        logging.OrNop(logger),
	}
}

// Connect opens the connection pool and checks that the server answers.
func (db *Database) Connect(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, db.dsn)
	if err != nil {
		return fmt.Errorf("unable to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	db.ConnectionPool = pool
	return nil
}

func (db *Database) Close() {
	if db.ConnectionPool != nil {
		db.ConnectionPool.Close()
	}
}

func (db *Database) rollbackOrCommit(ctx context.Context, tx pgx.Tx, err *error) {
	if *err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			db.logger.Error("transaction rollback failed", zap.Error(rbErr), zap.NamedError("original", *err))
		} else {
			db.logger.Debug("transaction rolled back", zap.Error(*err))
		}
		return
	}
	if cmErr := tx.Commit(ctx); cmErr != nil {
		*err = fmt.Errorf("commit failed: %w", cmErr)
		db.logger.Error("transaction commit failed", zap.Error(cmErr))
	}
}

// RunInTx runs fn in a read committed transaction. Row locks taken through
// the Lock* methods and advisory locks are held until it ends.
func (db *Database) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) (err error) {
	defer metrics.Observe("store_tx", time.Now())

	tx, err := db.ConnectionPool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer db.rollbackOrCommit(ctx, tx, &err)

	return fn(&dbTx{tx: tx})
}

// View runs fn in a read only transaction.
func (db *Database) View(ctx context.Context, fn func(tx storage.Tx) error) (err error) {
	defer metrics.Observe("store_view", time.Now())

	tx, err := db.ConnectionPool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read only tx: %w", err)
	}
	defer db.rollbackOrCommit(ctx, tx, &err)

	return fn(&dbTx{tx: tx})
}
