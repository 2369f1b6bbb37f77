package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type Config interface {
	DatabaseDriver() string
	DatabaseDSN() string
}

type Store struct {
	db *sqlx.DB
}

var schemas = map[string][]string{
	DriverSQLite: {
		`create table if not exists users (
			id                          integer primary key autoincrement,
			federation_id               text not null unique,
			name                        text not null unique,
			display_name                text not null default '',
			email                       text not null default '',
			summary                     text not null default '',
			url                         text not null,
			inbox                       text not null,
			outbox                      text not null,
			following                   text not null,
			followers                   text not null,
			featured                    text not null,
			featured_tags               text not null,
			icon_location               text not null default '',
			image_location              text not null default '',
			discoverable                boolean not null default true,
			manually_approves_followers boolean not null default false,
			indexable                   boolean not null default true,
			published                   integer not null,
			password                    text not null default ''
		)`,
		`create table if not exists signing_keys (
			user_id     integer not null primary key references users(id) on delete cascade,
			public_key  text not null,
			private_key text not null
		)`,
		`create table if not exists followers (
			id            text not null primary key,
			user_id       integer not null references users(id) on delete cascade,
			federation_id text not null,
			inbox         text not null,
			object        text not null,
			follow_at     integer not null,
			unfollow_at   integer null,
			unique (user_id, federation_id)
		)`,
	},
	DriverPostgres: {
		`create table if not exists users (
			id                          bigserial primary key,
			federation_id               text not null unique,
			name                        text not null unique,
			display_name                text not null default '',
			email                       text not null default '',
			summary                     text not null default '',
			url                         text not null,
			inbox                       text not null,
			outbox                      text not null,
			following                   text not null,
			followers                   text not null,
			featured                    text not null,
			featured_tags               text not null,
			icon_location               text not null default '',
			image_location              text not null default '',
			discoverable                boolean not null default true,
			manually_approves_followers boolean not null default false,
			indexable                   boolean not null default true,
			published                   bigint not null,
			password                    text not null default ''
		)`,
		`create table if not exists signing_keys (
			user_id     bigint not null primary key references users(id) on delete cascade,
			public_key  text not null,
			private_key text not null
		)`,
		`create table if not exists followers (
			id            text not null primary key,
			user_id       bigint not null references users(id) on delete cascade,
			federation_id text not null,
			inbox         text not null,
			object        text not null,
			follow_at     bigint not null,
			unfollow_at   bigint null,
			unique (user_id, federation_id)
		)`,
	},
}

func Open(config Config) (*Store, error) {
	driver := config.DatabaseDriver()
	schema, ok := schemas[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sqlx.Connect(driver, config.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if driver == DriverSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`pragma foreign_keys = on`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	return &Store{db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
