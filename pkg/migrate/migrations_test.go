package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/homeserve-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestBookingsMigrationGuardsAssignmentAndOccurrences(t *testing.T) {
	content := readMigration(t, "*_create_bookings.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS bookings",
		"CHECK (partner_status = 'not_assigned' OR partner_id IS NOT NULL)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_pattern_occurrence",
		"ON bookings (recurring_pattern_id, scheduled_at)",
		"DROP TABLE IF EXISTS bookings",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPartnerAvailabilityMigrationBindsBusyStatuses(t *testing.T) {
	content := readMigration(t, "*_create_partner_availabilities.sql")
	if !strings.Contains(content, "CHECK (status NOT IN ('ASSIGNED', 'ENROUTE', 'ARRIVED', 'BUSY') OR current_booking_id IS NOT NULL)") {
		t.Errorf("expected current_booking_id guard on busy statuses")
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Hub Timezone")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_hub_timezone.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestBroadcastCandidatesMigrationAddsColumn(t *testing.T) {
	content := readMigration(t, "*_add_booking_broadcast_candidates.sql")
	if !strings.Contains(content, "ADD COLUMN IF NOT EXISTS broadcast_partner_ids uuid[] NOT NULL DEFAULT '{}'") {
		t.Errorf("expected broadcast_partner_ids column")
	}
}
