package instrumentation

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/holepunchto/blind-peer-cli/pkg/engine"
	"github.com/holepunchto/blind-peer-cli/pkg/engine/enginetest"
	"github.com/holepunchto/blind-peer-cli/pkg/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExporter(t *testing.T) (*Exporter, keys.Secret) {
	t.Helper()

	var secret keys.Secret
	for i := range secret {
		secret[i] = byte(i)
	}
	e, err := New(Options{
		Secret:      secret,
		Alias:       "test-node",
		ServiceName: "blind-peer",
		Version:     "test",
		ListenAddr:  "127.0.0.1:0",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return e, secret
}

func scrape(t *testing.T, addr, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, "http://"+addr+"/metrics", nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestExporter_RequiresAlias(t *testing.T) {
	_, err := New(Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestExporter_RejectsUnauthenticatedScrapes(t *testing.T) {
	e, _ := testExporter(t)
	require.NoError(t, e.Ready(context.Background()))
	defer e.Close(context.Background())

	resp := scrape(t, e.Addr(), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = scrape(t, e.Addr(), "not-the-secret")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestExporter_ServesAuthenticatedScrapes(t *testing.T) {
	e, secret := testExporter(t)

	fake := &enginetest.Fake{
		StorageDigest: engine.Digest{BytesAllocated: 41_000_000, MaxBytes: 100_000_000_000},
	}
	fake.FakeSwarm.SetStreams([]engine.Stream{
		enginetest.Stream{StreamID: "a"},
		enginetest.Stream{StreamID: "b"},
	})
	e.RegisterEngine(fake)

	require.NoError(t, e.Ready(context.Background()))
	defer e.Close(context.Background())

	resp := scrape(t, e.Addr(), keys.Format(secret[:]))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, bytes.Contains(body, []byte(`blind_peer_build_info{alias="test-node",service="blind-peer",version="test"} 1`)))
	assert.True(t, bytes.Contains(body, []byte("blind_peer_bytes_allocated 4.1e+07")))
	assert.True(t, bytes.Contains(body, []byte("blind_peer_max_storage_bytes 1e+11")))
	assert.True(t, bytes.Contains(body, []byte("blind_peer_open_streams 2")))
	assert.NotNil(t, fake.MetricsRegisterer())
}

func TestExporter_CloseWithoutReady(t *testing.T) {
	e, _ := testExporter(t)
	assert.NoError(t, e.Close(context.Background()))
}

func TestExporter_CloseStopsServing(t *testing.T) {
	e, _ := testExporter(t)
	require.NoError(t, e.Ready(context.Background()))
	addr := e.Addr()
	require.NoError(t, e.Close(context.Background()))

	_, err := http.Get("http://" + addr + "/metrics")
	assert.Error(t, err)
}
