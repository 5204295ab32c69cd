package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/azoula-gateway/internal/infrastructure/database"
	"github.com/nerrad567/azoula-gateway/internal/protocol"
	"github.com/nerrad567/azoula-gateway/internal/tsl"
)

// Repository stores device snapshots per gateway.
type Repository interface {
	// Save replaces the stored result set for gatewayID.
	Save(ctx context.Context, gatewayID string, devices []Snapshot) error

	// List returns the stored devices for gatewayID ordered by ID.
	List(ctx context.Context, gatewayID string) ([]Snapshot, error)

	// Get returns one stored device. Returns ErrDeviceNotFound if absent.
	Get(ctx context.Context, gatewayID, id string) (*Snapshot, error)

	// UpdateOnline records reachability. Returns ErrDeviceNotFound if absent.
	UpdateOnline(ctx context.Context, gatewayID, id string, online bool) error

	// UpdateProperties upserts reported values. Returns ErrDeviceNotFound if
	// the device is absent.
	UpdateProperties(ctx context.Context, gatewayID, id string, props protocol.Properties) error
}

// SQLiteRepository implements Repository on the snapshot database.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a repository over a migrated database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, name, profile, device_type, product_id, version,
	manufacturer, protocol, online, tsl, discovered_at, updated_at`

// Save implements Repository.
func (r *SQLiteRepository) Save(ctx context.Context, gatewayID string, devices []Snapshot) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM devices WHERE gateway_id = ?", gatewayID,
		); err != nil {
			return fmt.Errorf("clearing devices: %w", err)
		}

		for i := range devices {
			s := &devices[i]
			tslJSON, err := marshalTSL(s.TSL)
			if err != nil {
				return fmt.Errorf("encoding tsl for %s: %w", s.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO devices (gateway_id, `+deviceColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				gatewayID, s.ID, s.Name, s.Profile, s.DeviceType, s.ProductID, s.Version,
				s.Manufacturer, s.Protocol, boolToInt(s.Online), tslJSON,
				formatTime(s.DiscoveredAt), formatTime(s.UpdatedAt),
			); err != nil {
				return fmt.Errorf("inserting device %s: %w", s.ID, err)
			}
			if err := upsertProperties(ctx, tx, gatewayID, s.ID, s.Properties); err != nil {
				return err
			}
		}
		return nil
	})
}

// List implements Repository.
func (r *SQLiteRepository) List(ctx context.Context, gatewayID string) ([]Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE gateway_id = ? ORDER BY id", gatewayID)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	props, err := r.loadProperties(ctx, gatewayID, "")
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Properties = props[out[i].ID]
	}
	return out, nil
}

// Get implements Repository.
func (r *SQLiteRepository) Get(ctx context.Context, gatewayID, id string) (*Snapshot, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE gateway_id = ? AND id = ?", gatewayID, id)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device: %w", err)
	}

	props, err := r.loadProperties(ctx, gatewayID, id)
	if err != nil {
		return nil, err
	}
	s.Properties = props[id]
	return s, nil
}

// UpdateOnline implements Repository.
func (r *SQLiteRepository) UpdateOnline(ctx context.Context, gatewayID, id string, online bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE devices SET online = ?, updated_at = ? WHERE gateway_id = ? AND id = ?",
		boolToInt(online), formatTime(time.Now()), gatewayID, id)
	if err != nil {
		return fmt.Errorf("updating online state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// UpdateProperties implements Repository.
func (r *SQLiteRepository) UpdateProperties(ctx context.Context, gatewayID, id string, props protocol.Properties) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE devices SET updated_at = ? WHERE gateway_id = ? AND id = ?",
			formatTime(time.Now()), gatewayID, id)
		if err != nil {
			return fmt.Errorf("touching device: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return ErrDeviceNotFound
		}
		return upsertProperties(ctx, tx, gatewayID, id, props)
	})
}

func upsertProperties(ctx context.Context, tx *sql.Tx, gatewayID, id string, props protocol.Properties) error {
	now := formatTime(time.Now())
	for name, v := range props {
		value, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding property %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO device_properties (gateway_id, device_id, identifier, value, reported_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (gateway_id, device_id, identifier)
			DO UPDATE SET value = excluded.value, reported_at = excluded.reported_at`,
			gatewayID, id, name, string(value), now,
		); err != nil {
			return fmt.Errorf("storing property %s: %w", name, err)
		}
	}
	return nil
}

// loadProperties returns stored values grouped by device. An empty id loads
// every device of the gateway.
func (r *SQLiteRepository) loadProperties(ctx context.Context, gatewayID, id string) (map[string]protocol.Properties, error) {
	query := "SELECT device_id, identifier, value FROM device_properties WHERE gateway_id = ?"
	args := []any{gatewayID}
	if id != "" {
		query += " AND device_id = ?"
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	out := make(map[string]protocol.Properties)
	for rows.Next() {
		var deviceID, name, raw string
		if err := rows.Scan(&deviceID, &name, &raw); err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		var v protocol.PropertyValue
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decoding property %s/%s: %w", deviceID, name, err)
		}
		if out[deviceID] == nil {
			out[deviceID] = make(protocol.Properties)
		}
		out[deviceID][name] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating properties: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(scanner rowScanner) (*Snapshot, error) {
	var s Snapshot
	var online int
	var tslJSON sql.NullString
	var discoveredAt, updatedAt string

	if err := scanner.Scan(
		&s.ID, &s.Name, &s.Profile, &s.DeviceType, &s.ProductID, &s.Version,
		&s.Manufacturer, &s.Protocol, &online, &tslJSON, &discoveredAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	s.Online = online != 0
	s.DiscoveredAt = parseTime(discoveredAt)
	s.UpdatedAt = parseTime(updatedAt)

	if tslJSON.Valid && tslJSON.String != "" {
		m, err := tsl.Parse([]byte(tslJSON.String))
		if err != nil {
			return nil, fmt.Errorf("decoding tsl for %s: %w", s.ID, err)
		}
		s.TSL = m
		s.Categories = tsl.RequiredCategories(m)
	}
	return &s, nil
}

func marshalTSL(m *tsl.Model) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
