// Package store executes built queries against the telemetry store.
package store

import (
	"crypto/tls"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ConnectionConfig describes how to reach the ClickHouse server.
type ConnectionConfig struct {
	// URL is http(s)://host:port for the HTTP interface or clickhouse://host:port for native TCP.
	URL             string
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	DialTimeout     time.Duration
	ConnMaxLifetime time.Duration
}

// Open builds the shared connection pool. No connection is made until first use.
func Open(cfg ConnectionConfig) (*sql.DB, error) {
	opts, err := clickhouseOptions(cfg)
	if err != nil {
		return nil, err
	}
	db := clickhouse.OpenDB(opts)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

func clickhouseOptions(cfg ConnectionConfig) (*clickhouse.Options, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("clickhouse url %q has no host", cfg.URL)
	}

	opts := &clickhouse.Options{
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	host := u.Host
	switch strings.ToLower(u.Scheme) {
	case "http":
		opts.Protocol = clickhouse.HTTP
		host = withDefaultPort(host, "8123")
	case "https":
		opts.Protocol = clickhouse.HTTP
		opts.TLS = &tls.Config{ServerName: u.Hostname()}
		host = withDefaultPort(host, "8443")
	case "clickhouse", "tcp":
		opts.Protocol = clickhouse.Native
		host = withDefaultPort(host, "9000")
	default:
		return nil, fmt.Errorf("unsupported clickhouse url scheme %q", u.Scheme)
	}
	opts.Addr = []string{host}

	if u.User != nil && opts.Auth.Username == "" {
		opts.Auth.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok && opts.Auth.Password == "" {
			opts.Auth.Password = pw
		}
	}
	return opts, nil
}

func withDefaultPort(host, port string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, port)
}
