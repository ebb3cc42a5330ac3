package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
)

func TestBuildOptions(t *testing.T) {
	cfg := ClientConfig{Port: 9000, Database: "default", User: "default"}
	for _, opt := range []ClientOption{
		WithAddress("ch.local", 9440),
		WithDatabase("horizon"),
		WithCredentials("svc", "secret"),
		WithHTTP(true),
		WithAsyncInsert(true, true),
		WithMaxExecutionTime(90 * time.Second),
		WithTimeouts(0, 3*time.Second),
	} {
		opt(&cfg)
	}

	o := buildOptions(cfg)
	assert.Equal(t, []string{"ch.local:9440"}, o.Addr)
	assert.Equal(t, ch.HTTP, o.Protocol)
	assert.Equal(t, "horizon", o.Auth.Database)
	assert.Equal(t, "svc", o.Auth.Username)
	assert.Equal(t, 90, o.Settings["max_execution_time"])
	assert.Equal(t, 1, o.Settings["async_insert"])
	assert.Equal(t, 1, o.Settings["wait_for_async_insert"])
	assert.Equal(t, 3*time.Second, o.ReadTimeout)
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}
