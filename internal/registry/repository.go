package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Device is one row of the device registry.
type Device struct {
	// ID is the bridge-local device identifier from config.yaml.
	ID string `json:"id"`

	// MAC is the device's MAC address, unique across the fleet.
	MAC string `json:"mac"`

	// Name is the device's human-readable name.
	Name string `json:"name"`

	// Model is the Shelly model identifier (e.g. "SHSW-25", "SNSW-001X16EU").
	Model string `json:"model"`

	// Generation is the device's API generation (1 block, 2 RPC).
	Generation int `json:"generation"`

	// Firmware is the firmware version string reported by the device.
	Firmware string `json:"firmware"`

	// Host is the device's IP address or hostname.
	Host string `json:"host"`

	// LastSeen is the time of the last successful poll or push report.
	LastSeen *time.Time `json:"last_seen,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository defines the interface for registry persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Upsert inserts a device or refreshes an existing row by ID.
	// Identity fields (MAC, name, model, firmware, host) are updated on
	// conflict; created_at is preserved.
	Upsert(ctx context.Context, device *Device) error

	// GetByID retrieves a device by its identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all registered devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// TouchLastSeen updates only the last_seen timestamp.
	// This is the hot path, called after every successful refresh.
	TouchLastSeen(ctx context.Context, id string, seen time.Time) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// device registry migration applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts a device or refreshes an existing row by ID.
func (r *SQLiteRepository) Upsert(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (
			id, mac, name, model, generation, firmware, host,
			last_seen, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mac        = excluded.mac,
			name       = excluded.name,
			model      = excluded.model,
			generation = excluded.generation,
			firmware   = excluded.firmware,
			host       = excluded.host,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		device.ID,
		device.MAC,
		device.Name,
		device.Model,
		device.Generation,
		device.Firmware,
		device.Host,
		nullableTime(device.LastSeen),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// GetByID retrieves a device by its identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `
		SELECT id, mac, name, model, generation, firmware, host,
			last_seen, created_at, updated_at
		FROM devices
		WHERE id = ?`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all registered devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `
		SELECT id, mac, name, model, generation, firmware, host,
			last_seen, created_at, updated_at
		FROM devices
		ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// TouchLastSeen updates only the last_seen timestamp.
func (r *SQLiteRepository) TouchLastSeen(ctx context.Context, id string, seen time.Time) error {
	query := `UPDATE devices SET last_seen = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, seen.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating last_seen: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice scans one registry row.
func scanDevice(s scanner) (*Device, error) {
	var (
		device    Device
		lastSeen  sql.NullString
		createdAt string
		updatedAt string
	)

	err := s.Scan(
		&device.ID,
		&device.MAC,
		&device.Name,
		&device.Model,
		&device.Generation,
		&device.Firmware,
		&device.Host,
		&lastSeen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		device.LastSeen = &t
	}
	if device.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if device.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &device, nil
}

// nullableTime converts an optional time to a driver value.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
