package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/aipair/internal/engine/protocol"
)

func decodeTypes(t *testing.T, out string) []string {
	t.Helper()
	var types []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var msg struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &msg), line)
		types = append(types, msg.Type)
	}
	return types
}

func TestStdioRunner(t *testing.T) {
	c := NewController(testConfig(t), newFakeRunner())
	in := strings.NewReader("{\"type\":\"openSettings\"}\n\nnot json\n{\"type\":\"requestLogs\"}\n")
	var out bytes.Buffer

	require.NoError(t, NewStdioRunner(c, in, &out, nil).Run(context.Background()))

	assert.Equal(t, []string{
		"stateUpdate", "configUpdate", // initial state
		"configUpdate",
		"logUpdate", // invalid command
		"logUpdate",
	}, decodeTypes(t, out.String()))
	assert.Contains(t, out.String(), `"source":"error"`)
}

func TestServer_WebsocketRoundTrip(t *testing.T) {
	c := NewController(testConfig(t), newFakeRunner())
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "aipair_run_escalations_total 0\n")
	})
	srv := httptest.NewServer(NewServer(c, metrics, nil).Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() string {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg.Type
	}
	assert.Equal(t, "stateUpdate", read())
	assert.Equal(t, "configUpdate", read())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"openSettings"}`)))
	assert.Equal(t, string(protocol.TypeConfigUpdate), read())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	assert.Equal(t, string(protocol.TypeLogUpdate), read())

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "aipair_run_escalations_total")
}
