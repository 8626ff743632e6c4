// Package dbtest opens throwaway sqlite databases shaped like the production schema.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/angelmondragon/homeserve-backend/pkg/db"
)

const Hubs = `
CREATE TABLE IF NOT EXISTS hubs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  lat REAL NOT NULL,
  lng REAL NOT NULL,
  radius_km REAL NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  supervisor_ids TEXT NOT NULL DEFAULT '{}',
  created_at DATETIME,
  updated_at DATETIME
);`

const HubServices = `
CREATE TABLE IF NOT EXISTS hub_services (
  id TEXT PRIMARY KEY,
  hub_id TEXT NOT NULL,
  service_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price TEXT NOT NULL,
  estimated_minutes INTEGER NOT NULL,
  active INTEGER NOT NULL DEFAULT 1
);`

const Bookings = `
CREATE TABLE IF NOT EXISTS bookings (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  hub_id TEXT NOT NULL,
  recurring_pattern_id TEXT,
  schedule_kind TEXT NOT NULL,
  scheduled_at DATETIME NOT NULL,
  items TEXT NOT NULL,
  user_snapshot TEXT NOT NULL,
  partner_id TEXT,
  partner_snapshot TEXT,
  broadcast_partner_ids TEXT NOT NULL DEFAULT '{}',
  currency TEXT NOT NULL,
  base_amount TEXT NOT NULL,
  extra_amount TEXT NOT NULL DEFAULT '0',
  total_amount TEXT NOT NULL,
  estimated_minutes INTEGER NOT NULL,
  booking_status TEXT NOT NULL DEFAULT 'created',
  partner_status TEXT NOT NULL DEFAULT 'not_assigned',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  start_otp TEXT NOT NULL,
  end_otp TEXT NOT NULL,
  start_otp_verified INTEGER NOT NULL DEFAULT 0,
  end_otp_verified INTEGER NOT NULL DEFAULT 0,
  assigned_at DATETIME,
  started_at DATETIME,
  completed_at DATETIME,
  cancelled_at DATETIME,
  cancelled_by TEXT,
  cancel_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_pattern_occurrence
  ON bookings (recurring_pattern_id, scheduled_at)
  WHERE recurring_pattern_id IS NOT NULL;`

const PartnerAvailabilities = `
CREATE TABLE IF NOT EXISTS partner_availabilities (
  partner_id TEXT PRIMARY KEY,
  online INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'OFFLINE',
  location TEXT,
  current_booking_id TEXT,
  scheduled_jobs TEXT NOT NULL DEFAULT '{}',
  completed_jobs TEXT NOT NULL DEFAULT '{}',
  created_at DATETIME,
  updated_at DATETIME
);`

const RecurringPatterns = `
CREATE TABLE IF NOT EXISTS recurring_patterns (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  hub_id TEXT NOT NULL,
  cadence TEXT NOT NULL,
  weekdays TEXT,
  month_days TEXT,
  time_of_day_minutes INTEGER NOT NULL,
  items TEXT NOT NULL,
  user_snapshot TEXT NOT NULL,
  start_date DATETIME NOT NULL,
  end_date DATETIME,
  next_schedule_date DATETIME NOT NULL,
  generated_count INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'active',
  created_at DATETIME,
  updated_at DATETIME
);`

const OutboxEvents = `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`

const OutboxDLQ = `
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`

// All is every table in dependency order.
var All = []string{Hubs, HubServices, RecurringPatterns, Bookings, PartnerAvailabilities, OutboxEvents, OutboxDLQ}

// Open returns an isolated in-memory database with the given tables. The pool is
// pinned to one connection so concurrent callers queue instead of hitting
// sqlite's shared-cache table locks.
func Open(t testing.TB, tables ...string) *gorm.DB {
	t.Helper()
	dsn := "file:hs_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if len(tables) == 0 {
		tables = All
	}
	for _, ddl := range tables {
		if err := conn.Exec(ddl).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Client wraps Open in the application's db client.
func Client(t testing.TB, tables ...string) *db.Client {
	t.Helper()
	return db.NewFromConn(Open(t, tables...))
}
