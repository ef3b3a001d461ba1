package config

import (
	"errors"
	"os"
	"testing"
	"time"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func noFile(string) ([]byte, error) { return nil, os.ErrNotExist }

func TestDefaults(t *testing.T) {
	cfg, err := load(env(nil), noFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreMemory || cfg.HTTPAddr != ":8080" || cfg.Currency != "USD" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MySQL.MaxOpenConns != 100 || cfg.MySQL.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("mysql pool defaults not applied: %+v", cfg.MySQL)
	}
}

func TestDatabaseURLSelectsPostgres(t *testing.T) {
	cfg, err := load(env(map[string]string{"DATABASE_URL": "postgres://x"}), noFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StorePostgres {
		t.Fatalf("store = %s", cfg.Store)
	}
}

func TestFileThenEnv(t *testing.T) {
	file := []byte(`
http_addr: ":9090"
store: bolt
bolt_path: /var/lib/ledger.db
ledger_currency: eur
dev_seed: true
server:
  write_timeout: 30s
mysql:
  host: db
  max_open_conns: 7
`)
	read := func(path string) ([]byte, error) {
		if path != "/etc/ledger.yaml" {
			return nil, errors.New("unexpected path " + path)
		}
		return file, nil
	}
	cfg, err := load(env(map[string]string{
		"CONFIG_FILE": "/etc/ledger.yaml",
		"HTTP_ADDR":   ":7070",
		"DEV_SEED":    "no",
	}), read)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" || cfg.Store != StoreBolt || cfg.BoltPath != "/var/lib/ledger.db" {
		t.Fatalf("unexpected merge: %+v", cfg)
	}
	if cfg.Currency != "EUR" || cfg.DevSeed {
		t.Fatalf("currency=%s devSeed=%v", cfg.Currency, cfg.DevSeed)
	}
	if cfg.Server.WriteTimeout != 30*time.Second || cfg.Server.ReadTimeout != 5*time.Second {
		t.Fatalf("server timeouts: %+v", cfg.Server)
	}
	if cfg.MySQL.Host != "db" || cfg.MySQL.MaxOpenConns != 7 || cfg.MySQL.Port != 3306 {
		t.Fatalf("mysql: %+v", cfg.MySQL)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := []map[string]string{
		{"STORE": "cassandra"},
		{"STORE": "postgres"},
		{"LEDGER_CURRENCY": "JPY"},
		{"DEV_SEED": "maybe"},
		{"MYSQL_PORT": "abc"},
		{"PERSIST_TIMEOUT": "soon"},
	}
	for _, c := range cases {
		if _, err := load(env(c), noFile); err == nil {
			t.Fatalf("expected error for %v", c)
		}
	}
	if _, err := load(env(map[string]string{"CONFIG_FILE": "/missing.yaml"}), noFile); err == nil {
		t.Fatalf("expected error for unreadable config file")
	}
}
