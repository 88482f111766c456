package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austinkregel/local-media/musicd/internal/config"
	"github.com/austinkregel/local-media/musicd/internal/params"
	"github.com/austinkregel/local-media/musicd/internal/pipeline"
)

func newTestServer(t *testing.T) (*Server, string, context.CancelFunc) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.NewManager(dir)
	require.NoError(t, cfg.Load())

	p, err := pipeline.New(params.Default())
	require.NoError(t, err)

	socketPath := filepath.Join(dir, "blinkcored.sock")
	srv, err := NewServer(socketPath, cfg, p)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Start(ctx)

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	return srv, socketPath, cancel
}

func dial(t *testing.T, socketPath string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, req Request) *Response {
	t.Helper()
	data, err := EncodeRequest(&req)
	require.NoError(t, err)
	data = append(data, '\n')
	_, err = conn.Write(data)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	resp, err := DecodeResponse(line)
	require.NoError(t, err)
	return resp
}

func TestGetParamsReturnsDefaultBundle(t *testing.T) {
	_, socketPath, cancel := newTestServer(t)
	defer cancel()

	conn := dial(t, socketPath)
	defer conn.Close()

	resp := roundTrip(t, conn, Request{Cmd: CmdGetParams})
	require.True(t, resp.Success)

	var got GetParamsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, params.Default(), got.Params)
}

func TestSetParamsAcceptsValidBundleAndPersists(t *testing.T) {
	srv, socketPath, cancel := newTestServer(t)
	defer cancel()

	conn := dial(t, socketPath)
	defer conn.Close()

	b := params.Default()
	b.Fusion.FusionThreshold = 0.7

	payload, err := json.Marshal(SetParamsRequest{Params: b})
	require.NoError(t, err)

	resp := roundTrip(t, conn, Request{Cmd: CmdSetParams, Data: payload})
	require.True(t, resp.Success)

	var got GetParamsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	assert.Equal(t, 0.7, got.Params.Fusion.FusionThreshold)

	persisted := config.NewManager(filepath.Dir(srv.configMgr.GetPath()))
	require.NoError(t, persisted.Load())
	assert.Equal(t, 0.7, persisted.Params().Fusion.FusionThreshold)
}

func TestSetParamsRejectsInvalidBundle(t *testing.T) {
	_, socketPath, cancel := newTestServer(t)
	defer cancel()

	conn := dial(t, socketPath)
	defer conn.Close()

	b := params.Default()
	b.Rhythm.BPMMin = b.Rhythm.BPMMax + 10

	payload, err := json.Marshal(SetParamsRequest{Params: b})
	require.NoError(t, err)

	resp := roundTrip(t, conn, Request{Cmd: CmdSetParams, Data: payload})
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestUnknownCommandReturnsError(t *testing.T) {
	_, socketPath, cancel := newTestServer(t)
	defer cancel()

	conn := dial(t, socketPath)
	defer conn.Close()

	resp := roundTrip(t, conn, Request{Cmd: CommandType("bogus")})
	assert.False(t, resp.Success)
}

func TestSubscribeAndUnsubscribeTelemetry(t *testing.T) {
	srv, socketPath, cancel := newTestServer(t)
	defer cancel()

	conn := dial(t, socketPath)
	defer conn.Close()

	resp := roundTrip(t, conn, Request{Cmd: CmdSubscribeTelemetry})
	require.True(t, resp.Success)
	assert.Equal(t, 1, srv.pipeline.Sink().Count())

	resp = roundTrip(t, conn, Request{Cmd: CmdUnsubscribeTelemetry})
	require.True(t, resp.Success)
	assert.Equal(t, 0, srv.pipeline.Sink().Count())
}

func TestClientDisconnectRemovesTelemetrySubscription(t *testing.T) {
	srv, socketPath, cancel := newTestServer(t)
	defer cancel()

	conn := dial(t, socketPath)

	resp := roundTrip(t, conn, Request{Cmd: CmdSubscribeTelemetry})
	require.True(t, resp.Success)
	require.Equal(t, 1, srv.pipeline.Sink().Count())

	conn.Close()

	require.Eventually(t, func() bool {
		return srv.pipeline.Sink().Count() == 0
	}, time.Second, 10*time.Millisecond)
}
