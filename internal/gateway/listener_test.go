package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func runNATSServer(t *testing.T) *nats.Conn {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)
	go ns.Start()
	t.Cleanup(ns.Shutdown)
	require.True(t, ns.ReadyForConnections(5*time.Second), "nats server not ready")

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

type natsClient struct {
	t  *testing.T
	nc *nats.Conn
	l  *Listener
}

func (c *natsClient) request(operation string, req, out any) ErrorResponse {
	c.t.Helper()

	data, err := json.Marshal(req)
	require.NoError(c.t, err)
	msg, err := c.nc.Request(c.l.Subject(operation), data, 5*time.Second)
	require.NoError(c.t, err)

	var apiErr ErrorResponse
	require.NoError(c.t, json.Unmarshal(msg.Data, &apiErr))
	if apiErr.Code != "" {
		return apiErr
	}
	require.NoError(c.t, json.Unmarshal(msg.Data, out))
	return apiErr
}

func (c *natsClient) ok(operation string, req, out any) {
	c.t.Helper()
	apiErr := c.request(operation, req, out)
	require.Empty(c.t, apiErr.Code, "%s: %s", operation, apiErr.Error)
}

func startListener(t *testing.T) *natsClient {
	t.Helper()
	nc := runNATSServer(t)
	env := newTestEnv(t)

	cfg := DefaultConfig()
	cfg.Subject = "test.fhe"
	cfg.Concurrency = 2
	l := NewListener(cfg, nc, env.api, zaptest.NewLogger(t))
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { assert.NoError(t, l.Stop()) })

	return &natsClient{t: t, nc: nc, l: l}
}

func TestListenerIntegerFlow(t *testing.T) {
	c := startListener(t)

	var keys GenerateKeysResponse
	c.ok("keys.generate", GenerateKeysRequest{ParameterSet: "FAST"}, &keys)

	var a, b EncryptResponse
	c.ok("encrypt.integer", EncryptIntegerRequest{ClientKeyID: keys.ClientKeyID, Value: 9, NumBits: 4}, &a)
	c.ok("encrypt.integer", EncryptIntegerRequest{ClientKeyID: keys.ClientKeyID, Value: 12, NumBits: 4}, &b)

	var sum, gt EvaluateResponse
	c.ok("evaluate", EvaluateRequest{ServerKeyID: keys.ServerKeyID, Operation: "ADD", OperandIDs: []string{a.EncryptedDataID, b.EncryptedDataID}}, &sum)
	c.ok("evaluate", EvaluateRequest{ServerKeyID: keys.ServerKeyID, Operation: "GREATER_THAN", OperandIDs: []string{a.EncryptedDataID, b.EncryptedDataID}}, &gt)

	var total DecryptIntegerResponse
	c.ok("decrypt.integer", DecryptRequest{ClientKeyID: keys.ClientKeyID, EncryptedDataID: sum.ResultID}, &total)
	assert.Equal(t, int64(5), total.Value)

	var greater DecryptBooleanResponse
	c.ok("decrypt.boolean", DecryptRequest{ClientKeyID: keys.ClientKeyID, EncryptedDataID: gt.ResultID}, &greater)
	assert.False(t, greater.Value)

	assert.Eventually(t, func() bool { return c.l.Served() == 7 }, time.Second, 5*time.Millisecond)
}

func TestListenerErrorReply(t *testing.T) {
	c := startListener(t)

	var resp EncryptResponse
	apiErr := c.request("encrypt.boolean", EncryptBooleanRequest{ClientKeyID: "missing"}, &resp)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Contains(t, apiErr.Error, "missing")

	apiErr = c.request("keys.generate", map[string]int{"bits": 1}, &resp)
	assert.Equal(t, "INVALID_ARGUMENT", apiErr.Code)
}

func TestListenerStopUnsubscribes(t *testing.T) {
	nc := runNATSServer(t)
	env := newTestEnv(t)

	l := NewListener(Config{Subject: "stop"}, nc, env.api, zaptest.NewLogger(t))
	require.NoError(t, l.Start(context.Background()))
	require.NoError(t, l.Stop())

	_, err := nc.Request(l.Subject("keys.generate"), nil, 200*time.Millisecond)
	assert.ErrorIs(t, err, nats.ErrNoResponders)
}
