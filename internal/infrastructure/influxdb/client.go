package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/azoula-gateway/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10

	millisecondsPerSecond = 1000
)

// pointWriter is the subset of api.WriteAPI the client uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client records gateway telemetry in InfluxDB.
//
// Writes are non-blocking and batched by the underlying write API. All
// methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI pointWriter
	cfg      config.InfluxDBConfig
	now      func() time.Time

	connected bool
	mu        sync.RWMutex

	onError func(err error)
}

// Connect creates the client, pings the server and opens a batched write
// API for the configured org and bucket. It returns ErrDisabled when the
// integration is switched off.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- values validated above to be positive
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := newClient(cfg, writeAPI)
	c.client = client

	go c.handleWriteErrors(writeAPI.Errors())

	return c, nil
}

func newClient(cfg config.InfluxDBConfig, w pointWriter) *Client {
	return &Client{
		writeAPI:  w,
		cfg:       cfg,
		now:       time.Now,
		connected: true,
	}
}

func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// Close flushes pending points and shuts the client down. Safe on nil.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if !wasConnected {
		return nil
	}
	if c.writeAPI != nil {
		c.writeAPI.Flush()
	}
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() || c.client == nil {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets the callback for asynchronous write failures. Errors
// passed to it wrap ErrWriteFailed.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush forces buffered points out. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() || c.writeAPI == nil {
		return
	}
	c.writeAPI.Flush()
}
