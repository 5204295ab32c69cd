// Package audit records the control actions issued to a gateway: property
// writes, service calls, identify requests and discoveries.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/azoula-gateway/internal/infrastructure/database"
)

// Actions.
const (
	ActionDiscover      = "discover"
	ActionSetProperties = "set_properties"
	ActionInvoke        = "invoke"
	ActionIdentify      = "identify"
)

// Sources.
const (
	SourceAPI = "api"
	SourceCLI = "cli"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Entry is one recorded action. Error is empty when the action succeeded.
type Entry struct {
	ID        string         `json:"id"`
	GatewayID string         `json:"gateway_id"`
	DeviceID  string         `json:"device_id,omitempty"`
	Action    string         `json:"action"`
	Source    string         `json:"source"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter selects entries. Empty fields match everything.
type Filter struct {
	GatewayID string
	DeviceID  string
	Action    string
	Limit     int // default 50, max 200
	Offset    int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository implements Repository on the snapshot database.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a repository over a migrated database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var details any
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, gateway_id, device_id, action, source, details, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.GatewayID, nullableString(e.DeviceID), e.Action, e.Source,
		details, nullableString(e.Error), e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"gateway_id", filter.GatewayID},
		{"device_id", filter.DeviceID},
		{"action", filter.Action},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	//nolint:gosec // WHERE built from fixed column names and ? placeholders
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	//nolint:gosec // WHERE built from fixed column names and ? placeholders
	query := `SELECT id, gateway_id, device_id, action, source, details, error, created_at
		FROM audit_log ` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                          Entry
			deviceID, details, errText sql.NullString
			createdAt                  string
		)
		if err := rows.Scan(&e.ID, &e.GatewayID, &deviceID, &e.Action, &e.Source,
			&details, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.DeviceID = deviceID.String
		e.Error = errText.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decoding audit details for %s: %w", e.ID, err)
			}
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
