package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/selliahq/payments-backend/pkg/migrate"
)

func TestPaymentTablesMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_payment_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no payment tables migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS payment_intents",
		"CREATE TABLE IF NOT EXISTS payment_attempts",
		"CREATE TABLE IF NOT EXISTS payment_transactions",
		"CREATE TABLE IF NOT EXISTS payment_events",
		"CHECK (amount > 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_intents_external_reference",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_transactions_tenant_provider",
		"FOREIGN KEY (intent_id) REFERENCES payment_intents(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS payment_events",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migration dir invalid: %v", err)
	}
}
