package server

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoserv/internal/dispatch"
	"memoserv/internal/store"
)

func wsRoundTrip(t *testing.T, conn *websocket.Conn, req string) string {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(req)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(p)
}

func TestBridgeSpeaksTheWireProtocol(t *testing.T) {
	st := store.New(t.TempDir())
	require.NoError(t, st.LoadAll())
	bridge := NewBridge(dispatch.New(st))

	httpSrv := httptest.NewServer(http.HandlerFunc(bridge.ServeHTTP))
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "OK:account created", wsRoundTrip(t, conn, "REGISTER:alice1:Secret1"))
	assert.Equal(t, "OK:memo added with id 1", wsRoundTrip(t, conn, "MEMO_ADD:alice1:Groceries:milk, eggs"))
	assert.Contains(t, wsRoundTrip(t, conn, "MEMO_LIST:alice1"), "Groceries")
	assert.Equal(t, "FAIL:unknown command: NOPE", wsRoundTrip(t, conn, "NOPE"))
}

func TestBridgeAndTCPShareOneStore(t *testing.T) {
	st := store.New(t.TempDir())
	require.NoError(t, st.LoadAll())
	d := dispatch.New(st)

	srv := New("127.0.0.1:0", d)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Shutdown)

	httpSrv := httptest.NewServer(NewBridge(d))
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	wsConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer wsConn.Close()

	require.Equal(t, "OK:account created", wsRoundTrip(t, wsConn, "REGISTER:alice1:Secret1"))

	tcpConn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer tcpConn.Close()
	assert.Equal(t, "OK:login successful", roundTrip(t, tcpConn, "LOGIN:alice1:Secret1"))
}

func TestBridgeClosesAfterExit(t *testing.T) {
	st := store.New(t.TempDir())
	require.NoError(t, st.LoadAll())
	bridge := NewBridge(dispatch.New(st))

	httpSrv := httptest.NewServer(bridge)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "OK:goodbye", wsRoundTrip(t, conn, "EXIT"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "server side is closed after EXIT")
}
