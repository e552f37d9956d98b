package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the schema. Every statement is idempotent.
func (db *Database) Migrate(ctx context.Context) error {
	if _, err := db.ConnectionPool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	db.logger.Info("schema applied")
	return nil
}

// databaseName returns the database a DSN points at.
func databaseName(dsn string) (string, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.Database == "" {
		return "", fmt.Errorf("dsn names no database")
	}
	return cfg.Database, nil
}

// ResetDatabase drops and recreates the database named by dsn through the
// management connection, then applies the schema. Development use only.
func (db *Database) ResetDatabase(ctx context.Context) error {
	name, err := databaseName(db.dsn)
	if err != nil {
		return err
	}
	ident := pgx.Identifier{name}.Sanitize()

	// open connections would block the drop
	db.Close()
	db.ConnectionPool = nil

	managementPool, err := pgxpool.New(ctx, db.managementDsn)
	if err != nil {
		return fmt.Errorf("unable to connect to management database: %w", err)
	}
	defer managementPool.Close()

	if _, err := managementPool.Exec(ctx, "DROP DATABASE IF EXISTS "+ident); err != nil {
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	db.logger.Info("database dropped", zap.String("database", name))

	if _, err := managementPool.Exec(ctx, "CREATE DATABASE "+ident); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	db.logger.Info("database created", zap.String("database", name))
	managementPool.Close()

	if err := db.Connect(ctx); err != nil {
		return err
	}
	return db.Migrate(ctx)
}
