package node

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iop-labs/profiled/pkg/config"
	"github.com/iop-labs/profiled/pkg/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	certPath := filepath.Join(dir, "tls.pem")
	require.NoError(t, config.GenerateSelfSignedCertificate(certPath, "profiled.test", false))

	cfg := &config.Config{
		ServerInterface:         "127.0.0.1",
		TLSServerCertificate:    certPath,
		ImageDataFolder:         filepath.Join(dir, "images"),
		TempDataFolder:          filepath.Join(dir, "images", ".staging"),
		MaxHostedIdentities:     100,
		LocationServiceEndpoint: "127.0.0.1:1",
		Latitude:                52.520008,
		Longitude:               13.404954,
		ShutdownTimeout:         2 * time.Second,
	}
	cfg.Database = store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(dir, "profiled.db")},
	}
	cfg.Neighborhood.WorkerInterval = 10 * time.Millisecond
	return cfg
}

// TestNodeLifecycle boots a full node on ephemeral ports, verifies every
// role listener comes up, then shuts it down and checks nothing leaks.
func TestNodeLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := New(ctx, testConfig(t), "test")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- n.Run(ctx)
	}()

	for _, a := range n.adapters {
		select {
		case <-a.ListenerReady:
		case <-time.After(5 * time.Second):
			t.Fatalf("%s listener did not come up", a.Role())
		}
		assert.Positive(t, a.Port())
	}

	// The plaintext role must accept a raw TCP connection.
	conn, err := net.Dial("tcp", n.adapters[0].GetListenerAddr())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not shut down")
	}
	require.NoError(t, n.Close())
}

func TestContactRecordDisabledWithoutEndpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := New(ctx, testConfig(t), "test")
	require.NoError(t, err)
	defer func() { require.NoError(t, n.Close()) }()

	assert.Nil(t, n.record)
}

func TestScaleCoordinate(t *testing.T) {
	assert.Equal(t, int32(52520008), scaleCoordinate(52.520008))
	assert.Equal(t, int32(-13404954), scaleCoordinate(-13.404954))
	assert.Equal(t, int32(0), scaleCoordinate(0))
}
