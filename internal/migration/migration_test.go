package migration

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestApplySQLiteSchemaEnforcesOpenInvoiceGuard(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := ApplySQLiteSchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	// Idempotent.
	if err := ApplySQLiteSchema(db); err != nil {
		t.Fatalf("reapply schema: %v", err)
	}

	insert := `INSERT INTO invoices (id, tenant_id, plan_id, number, status, period_start, period_end, due_date, currency, subtotal, tax_amount, total_amount)
		VALUES (?, 1, 2, ?, ?, '2026-01-01', '2026-02-01', '2026-01-06', 'COP', 100, 19, 119)`
	if err := db.Exec(insert, 1, "WB-1", "PENDING").Error; err != nil {
		t.Fatalf("insert first invoice: %v", err)
	}
	if err := db.Exec(insert, 2, "WB-2", "OVERDUE").Error; err == nil {
		t.Fatal("expected second open invoice for the same plan to be rejected")
	}
	if err := db.Exec(insert, 3, "WB-3", "CANCELLED").Error; err != nil {
		t.Fatalf("expected terminal invoice to be allowed: %v", err)
	}
}

func TestEmbeddedMigrationsPerDialect(t *testing.T) {
	for _, dialect := range []string{"postgres", "mysql"} {
		entries, err := fs.ReadDir(embeddedMigrations, migrationsDir+"/"+dialect)
		if err != nil {
			t.Fatalf("read %s migrations: %v", dialect, err)
		}
		if len(entries)%2 != 0 || len(entries) == 0 {
			t.Fatalf("expected paired up/down files for %s, got %d entries", dialect, len(entries))
		}
	}
}
