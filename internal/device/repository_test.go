package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/azoula-gateway/internal/infrastructure/database"
	"github.com/nerrad567/azoula-gateway/internal/protocol"
	"github.com/nerrad567/azoula-gateway/internal/tsl"
	"github.com/nerrad567/azoula-gateway/migrations"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "devices.db"), WALMode: true})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db)
}

func TestSQLiteRepositorySaveAndList(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	light := newDevice(t, "B")
	light.SetOnline(true)
	light.UpdateProperties(protocol.Properties{"OnOff": {Value: float64(1), Time: 1700000000}})
	m, err := tsl.Parse([]byte(`{"properties":[{"identifier":"OnOff","accessMode":"rw","dataType":{"type":"bool"}}],
		"services":[{"identifier":"get","inputData":["OnOff"]}]}`))
	if err != nil {
		t.Fatalf("tsl.Parse() error = %v", err)
	}
	light.SetTSL(m)
	plain := newDevice(t, "A")

	if err := repo.Save(ctx, "gw1", []Snapshot{light.Snapshot(), plain.Snapshot()}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Save(ctx, "gw2", []Snapshot{newDevice(t, "Z").Snapshot()}); err != nil {
		t.Fatalf("Save(gw2) error = %v", err)
	}

	list, err := repo.List(ctx, "gw1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "A" || list[1].ID != "B" {
		t.Fatalf("List() = %+v, want A then B", list)
	}

	got := list[1]
	if !got.Online {
		t.Error("online flag not stored")
	}
	if v := got.Properties["OnOff"]; v.Value != float64(1) || v.Time != 1700000000 {
		t.Errorf("property = %+v", v)
	}
	if got.TSL == nil || !got.TSL.CanGetProperty("OnOff") {
		t.Error("TSL not restored")
	}
	if len(got.Categories) != 1 || got.Categories[0] != tsl.CategoryLight {
		t.Errorf("Categories = %v", got.Categories)
	}
	if list[0].TSL != nil {
		t.Error("device without TSL should restore with nil TSL")
	}
}

func TestSQLiteRepositorySaveReplaces(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.Save(ctx, "gw1", []Snapshot{newDevice(t, "A").Snapshot()}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Save(ctx, "gw1", []Snapshot{newDevice(t, "B").Snapshot()}); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if _, err := repo.Get(ctx, "gw1", "A"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get(A) error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := repo.Get(ctx, "gw1", "B"); err != nil {
		t.Errorf("Get(B) error = %v", err)
	}
}

func TestSQLiteRepositoryUpdates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.Save(ctx, "gw1", []Snapshot{newDevice(t, "A").Snapshot()}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := repo.UpdateOnline(ctx, "gw1", "A", true); err != nil {
		t.Fatalf("UpdateOnline() error = %v", err)
	}
	if err := repo.UpdateProperties(ctx, "gw1", "A", protocol.Properties{"CurrentLevel": {Value: float64(50)}}); err != nil {
		t.Fatalf("UpdateProperties() error = %v", err)
	}
	if err := repo.UpdateProperties(ctx, "gw1", "A", protocol.Properties{"CurrentLevel": {Value: float64(75)}}); err != nil {
		t.Fatalf("second UpdateProperties() error = %v", err)
	}

	got, err := repo.Get(ctx, "gw1", "A")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Online {
		t.Error("online not updated")
	}
	if v := got.Properties["CurrentLevel"].Value; v != float64(75) {
		t.Errorf("CurrentLevel = %v, want 75", v)
	}

	if err := repo.UpdateOnline(ctx, "gw1", "missing", true); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateOnline(missing) error = %v", err)
	}
	if err := repo.UpdateProperties(ctx, "gw1", "missing", protocol.Properties{"x": {}}); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateProperties(missing) error = %v", err)
	}
}
