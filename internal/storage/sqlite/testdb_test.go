package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/common"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	cfg := &common.SQLiteConfig{
		Path:             filepath.Join(t.TempDir(), "jobengine.db"),
		Environment:      "test",
		BusyTimeout:      "2s",
		WAL:              false,
		HistoryClearDays: 90,
	}
	db, err := NewSQLiteDB(arbor.NewLogger(), cfg)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
