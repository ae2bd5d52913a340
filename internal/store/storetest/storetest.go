package storetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agenthands/crosswalk/internal/config"
	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/logger"
	"github.com/agenthands/crosswalk/internal/store"
)

// New opens a migrated SQLite store in a per-test temp directory.
func New(tb testing.TB) *store.Store {
	tb.Helper()
	return open(tb, config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             filepath.Join(tb.TempDir(), "crosswalk.db") + "?_busy_timeout=5000",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
}

// Postgres opens a migrated store on TEST_POSTGRES_DSN or skips the test.
func Postgres(tb testing.TB) *store.Store {
	tb.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("TEST_POSTGRES_DSN not set")
	}
	s := open(tb, config.DatabaseConfig{
		Driver:          "postgres",
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	tb.Cleanup(func() {
		s.DB().Exec("TRUNCATE mapping_edges, controls, products")
	})
	return s
}

func open(tb testing.TB, cfg config.DatabaseConfig) *store.Store {
	tb.Helper()
	s, err := store.Open(cfg, logger.Nop())
	if err != nil {
		tb.Fatalf("open store: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() { _ = s.Close() })
	return s
}

// SeedProduct stores an eligible product unless flags say otherwise.
func SeedProduct(tb testing.TB, s *store.Store, id string, eligible bool) model.Product {
	tb.Helper()
	p := model.Product{ID: id, Name: "Product " + id, Premium: true, Approved: eligible}
	if err := s.UpsertProduct(context.Background(), p); err != nil {
		tb.Fatalf("seed product: %v", err)
	}
	return p
}

// SeedControls stores one control per text with keys "<product>-q<i>".
func SeedControls(tb testing.TB, s *store.Store, productID string, texts ...string) []model.Control {
	tb.Helper()
	in := make([]model.Control, 0, len(texts))
	for i, t := range texts {
		in = append(in, model.Control{ProductID: productID, Key: fmt.Sprintf("%s-q%d", productID, i), Text: t, Ordinal: i})
	}
	if _, err := s.SyncControls(context.Background(), productID, in); err != nil {
		tb.Fatalf("seed controls: %v", err)
	}
	out, err := s.ActiveControls(context.Background(), productID)
	if err != nil {
		tb.Fatalf("load controls: %v", err)
	}
	return out
}
