package registry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id          TEXT PRIMARY KEY,
			mac         TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL DEFAULT '',
			model       TEXT NOT NULL DEFAULT '',
			generation  INTEGER NOT NULL,
			firmware    TEXT NOT NULL DEFAULT '',
			host        TEXT NOT NULL,
			last_seen   TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE INDEX idx_devices_mac ON devices (mac);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testRegistryDevice creates a device row for testing.
func testRegistryDevice(id, mac string) *Device {
	return &Device{
		ID:         id,
		MAC:        mac,
		Name:       "Hall Switch",
		Model:      "SHSW-25",
		Generation: 1,
		Firmware:   "20230913-112003/v1.14.0",
		Host:       "192.168.1.10",
	}
}

func TestSQLiteRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	t.Run("inserts new device", func(t *testing.T) {
		device := testRegistryDevice("hall-switch", "AA:BB:CC:00:00:01")

		if err := repo.Upsert(ctx, device); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "hall-switch")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Name != "Hall Switch" {
			t.Errorf("Name = %q, want %q", got.Name, "Hall Switch")
		}
		if got.Generation != 1 {
			t.Errorf("Generation = %d, want 1", got.Generation)
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Error("timestamps not set on insert")
		}
	})

	t.Run("refreshes identity on conflict", func(t *testing.T) {
		device := testRegistryDevice("garage-door", "AA:BB:CC:00:00:02")
		if err := repo.Upsert(ctx, device); err != nil {
			t.Fatalf("first Upsert() error = %v", err)
		}

		first, err := repo.GetByID(ctx, "garage-door")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}

		// The device was reflashed: firmware and name changed.
		updated := testRegistryDevice("garage-door", "AA:BB:CC:00:00:02")
		updated.Name = "Garage Door Opener"
		updated.Firmware = "20240101-000000/v1.15.0"
		if err := repo.Upsert(ctx, updated); err != nil {
			t.Fatalf("second Upsert() error = %v", err)
		}

		got, err := repo.GetByID(ctx, "garage-door")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Name != "Garage Door Opener" {
			t.Errorf("Name = %q after upsert, want refreshed name", got.Name)
		}
		if got.Firmware != "20240101-000000/v1.15.0" {
			t.Errorf("Firmware = %q after upsert, want refreshed version", got.Firmware)
		}
		if !got.CreatedAt.Equal(first.CreatedAt) {
			t.Errorf("CreatedAt changed on upsert: %v -> %v", first.CreatedAt, got.CreatedAt)
		}
	})
}

func TestSQLiteRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	_, err := repo.GetByID(context.Background(), "nonexistent")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("List() on empty registry returned %d devices", len(devices))
	}

	b := testRegistryDevice("b-device", "AA:BB:CC:00:00:0B")
	b.Name = "Bedroom"
	a := testRegistryDevice("a-device", "AA:BB:CC:00:00:0A")
	a.Name = "Attic"
	for _, d := range []*Device{b, a} {
		if err := repo.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	devices, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("List() returned %d devices, want 2", len(devices))
	}
	if devices[0].Name != "Attic" || devices[1].Name != "Bedroom" {
		t.Errorf("List() order = [%q, %q], want name order", devices[0].Name, devices[1].Name)
	}
}

func TestSQLiteRepository_TouchLastSeen(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	device := testRegistryDevice("hall-switch", "AA:BB:CC:00:00:01")
	if err := repo.Upsert(ctx, device); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	seen := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	if err := repo.TouchLastSeen(ctx, "hall-switch", seen); err != nil {
		t.Fatalf("TouchLastSeen() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "hall-switch")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, seen)
	}

	if err := repo.TouchLastSeen(ctx, "nonexistent", seen); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("TouchLastSeen() error = %v for unknown device, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	device := testRegistryDevice("hall-switch", "AA:BB:CC:00:00:01")
	if err := repo.Upsert(ctx, device); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := repo.Delete(ctx, "hall-switch"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "hall-switch"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v after delete, want ErrDeviceNotFound", err)
	}

	if err := repo.Delete(ctx, "hall-switch"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete() error = %v for missing device, want ErrDeviceNotFound", err)
	}
}
