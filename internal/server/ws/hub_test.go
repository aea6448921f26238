package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orbitflash/internal/cache/memory"
	"github.com/alanyoungcy/orbitflash/internal/domain"
)

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubRelaysBusMessages(t *testing.T) {
	bus := memory.NewBus(16)
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "full"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()
	require.Eventually(t, func() bool {
		return bus.Subscribers(domain.ChannelExecutionResult) == 1
	}, time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(httpHandler(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	status := readEnvelope(t, conn)
	assert.Equal(t, "status", status.Type)
	assert.Contains(t, string(status.Payload), `"mode":"full"`)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, domain.ChannelOpportunityNew, []byte(`{"id":"opp-1"}`)))
	env := readEnvelope(t, conn)
	assert.Equal(t, "event", env.Type)
	assert.Equal(t, domain.ChannelOpportunityNew, env.Channel)
	assert.JSONEq(t, `{"id":"opp-1"}`, string(env.Payload))
}

func TestHubUnsubscribe(t *testing.T) {
	c := &client{subs: map[string]bool{}}
	for _, ch := range Channels {
		c.subs[ch] = true
	}
	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelPriceUpdate}})
	assert.False(t, c.isSubscribed(domain.ChannelPriceUpdate))
	assert.True(t, c.isSubscribed(domain.ChannelExecutionResult))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelPriceUpdate}})
	assert.True(t, c.isSubscribed(domain.ChannelPriceUpdate))
}

func TestEncodeRejectsNonJSON(t *testing.T) {
	_, err := encode(domain.ChannelPriceUpdate, []byte("not json"))
	require.ErrorIs(t, err, errNotJSON)

	frame, err := encode(domain.ChannelPriceUpdate, []byte(`{"price":"1.5"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"event","channel":"price-update","payload":{"price":"1.5"}}`, string(frame))
}

func httpHandler(h *Hub) http.Handler { return http.HandlerFunc(h.HandleWS) }
