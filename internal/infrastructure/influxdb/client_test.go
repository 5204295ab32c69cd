package influxdb

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/azoula-gateway/internal/infrastructure/config"
	"github.com/nerrad567/azoula-gateway/internal/protocol"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func (f *fakeWriter) written() []*write.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*write.Point(nil), f.points...)
}

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newFakeClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	c := newClient(config.InfluxDBConfig{Enabled: true}, w)
	c.now = func() time.Time { return fixedNow }
	return c, w
}

func tag(p *write.Point, key string) (string, bool) {
	for _, t := range p.TagList() {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

func field(p *write.Point, key string) (any, bool) {
	for _, f := range p.FieldList() {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "azoula-dev-token",
		Org:           "azoula",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Integration(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION to run against a local InfluxDB")
	}

	client, err := Connect(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	client.WriteOnlineStatus("gw-1", "", true)
	client.Flush()
}

func TestWriteProperties(t *testing.T) {
	c, w := newFakeClient()

	props := protocol.Properties{
		"Brightness":  {Value: float64(80), Time: 1760616000123},
		"OnOff":       {Value: true, ChangeByUser: 1},
		"Temperature": {Value: "21.5", Time: 1760616000},
		"Mode":        {Value: "auto"},
	}

	if n := c.WriteProperties("gw-1", "dev-1", props); n != 3 {
		t.Fatalf("WriteProperties() = %d, want 3", n)
	}

	points := w.written()
	if len(points) != 3 {
		t.Fatalf("points = %d, want 3", len(points))
	}

	tests := []struct {
		property string
		value    float64
		ts       time.Time
	}{
		{"Brightness", 80, time.UnixMilli(1760616000123)},
		{"OnOff", 1, fixedNow},
		{"Temperature", 21.5, time.Unix(1760616000, 0)},
	}
	for i, tt := range tests {
		p := points[i]
		if p.Name() != MeasurementProperty {
			t.Errorf("point %d name = %q", i, p.Name())
		}
		if got, _ := tag(p, "property"); got != tt.property {
			t.Errorf("point %d property = %q, want %q", i, got, tt.property)
		}
		if got, _ := tag(p, "device_id"); got != "dev-1" {
			t.Errorf("point %d device_id = %q", i, got)
		}
		if got, _ := field(p, "value"); got != tt.value {
			t.Errorf("point %d value = %v, want %v", i, got, tt.value)
		}
		if !p.Time().Equal(tt.ts) {
			t.Errorf("point %d time = %v, want %v", i, p.Time(), tt.ts)
		}
	}

	if _, ok := field(points[1], "change_by_user"); !ok {
		t.Error("OnOff point missing change_by_user")
	}
	if _, ok := field(points[0], "change_by_user"); ok {
		t.Error("Brightness point has change_by_user")
	}
}

func TestWriteOnlineStatus(t *testing.T) {
	c, w := newFakeClient()

	c.WriteOnlineStatus("gw-1", "", false)
	c.WriteOnlineStatus("gw-1", "dev-1", true)

	points := w.written()
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2", len(points))
	}
	if _, ok := tag(points[0], "device_id"); ok {
		t.Error("gateway status point has device_id tag")
	}
	if got, _ := field(points[0], "online"); got != false {
		t.Errorf("online = %v, want false", got)
	}
	if got, _ := tag(points[1], "device_id"); got != "dev-1" {
		t.Errorf("device_id = %q", got)
	}
	if got, _ := field(points[1], "online"); got != true {
		t.Errorf("online = %v, want true", got)
	}
}

func TestWriteDeviceEvent(t *testing.T) {
	c, w := newFakeClient()

	c.WriteDeviceEvent("gw-1", "dev-1", "KeyPressed", map[string]any{
		"Key":   float64(2),
		"Label": "left",
	})

	points := w.written()
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	p := points[0]
	if p.Name() != MeasurementEvent {
		t.Errorf("name = %q", p.Name())
	}
	if got, _ := tag(p, "event"); got != "KeyPressed" {
		t.Errorf("event = %q", got)
	}
	if got, _ := field(p, "Key"); got != float64(2) {
		t.Errorf("Key = %v", got)
	}
	if _, ok := field(p, "Label"); ok {
		t.Error("non-numeric parameter written as field")
	}
	if got, _ := field(p, "count"); got != int64(1) {
		t.Errorf("count = %v (%T)", got, got)
	}
}

func TestWritesAfterClose(t *testing.T) {
	c, w := newFakeClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}

	c.WriteOnlineStatus("gw-1", "dev-1", true)
	c.WriteProperties("gw-1", "dev-1", protocol.Properties{"Level": {Value: float64(1)}})
	c.Flush()

	if n := len(w.written()); n != 0 {
		t.Errorf("points after close = %d, want 0", n)
	}
	if w.flushes != 1 {
		t.Errorf("flushes after close = %d, want 1", w.flushes)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c, _ := newFakeClient()

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	errs <- errors.New("bucket not found")
	close(errs)
	c.handleWriteErrors(errs)

	select {
	case err := <-got:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	default:
		t.Fatal("error callback not invoked")
	}
}
