package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atinyakov/GophLock/internal/config"
	"github.com/atinyakov/GophLock/internal/db"
	"github.com/atinyakov/GophLock/internal/repository"
	"github.com/atinyakov/GophLock/internal/seal"
	"github.com/atinyakov/GophLock/internal/store"
	"go.uber.org/zap"
)

// closableStore is a store.Store with resources to release.
type closableStore interface {
	store.Store
	Close() error
}

type nopCloser struct{ store.Store }

func (nopCloser) Close() error { return nil }

type sqlCloser struct {
	*repository.SQLStore
	db *sql.DB
}

func (s sqlCloser) Close() error { return s.db.Close() }

// openStore opens the store selected by opts. SQL stores also get a
// background sweeper for expired lockouts, stopped with ctx.
func openStore(ctx context.Context, opts *config.Options, c *seal.Cipher, log *zap.Logger) (closableStore, error) {
	switch opts.StoreDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store; PIN and security code are lost on exit")
		return nopCloser{store.NewMemory()}, nil

	case config.DriverFile:
		key, err := store.LoadOrCreateDeviceKey(opts.DeviceKeyFile)
		if err != nil {
			return nil, err
		}
		f, err := store.OpenFile(opts.StorePath, c, key)
		if err != nil {
			return nil, err
		}
		return nopCloser{f}, nil

	case config.DriverSQLite, config.DriverPostgres:
		var (
			conn *sql.DB
			err  error
		)
		if opts.StoreDriver == config.DriverSQLite {
			conn, err = db.InitSQLite(opts.StorePath)
		} else {
			conn, err = db.InitPostgres(opts.DatabaseDSN)
		}
		if err != nil {
			return nil, err
		}
		repo := repository.NewSQLStore(conn)
		db.StartLockoutSweeper(ctx, repo, opts.SweepInterval, log.Named("sweeper"))
		return sqlCloser{SQLStore: repo, db: conn}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", opts.StoreDriver)
}
