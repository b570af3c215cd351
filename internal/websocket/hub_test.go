package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"amap/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test_secret")

func signToken(t *testing.T, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  "b7e3f2a8-0000-0000-0000-000000000001",
		"role": role,
		"sid":  "sess-1",
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func newWsServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	go hub.Run()

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		ServeWs(hub, c, testSecret)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, srv
}

func TestServeWsRejectsBadTokens(t *testing.T) {
	_, srv := newWsServer(t)

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "?token=not-a-token", http.StatusUnauthorized},
		{"roleless token", "?token=" + signToken(t, ""), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Plain GET, no upgrade headers: the token checks run first.
			resp, err := http.Get(srv.URL + "/ws" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func dialWs(t *testing.T, srv *httptest.Server, role string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + signToken(t, role)
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *gorilla.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var event Event
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func TestHubTargetsPermissionEventsByRole(t *testing.T) {
	hub, srv := newWsServer(t)

	vendeurConn := dialWs(t, srv, "vendeur")
	adminConn := dialWs(t, srv, rbac.SuperuserRole)
	otherConn := dialWs(t, srv, "comptable")

	// Wait for the dispatch loop to register all three clients.
	time.Sleep(100 * time.Millisecond)

	hub.PermissionsUpdated("vendeur")

	// The affected role and the superuser sessions get the event.
	event := readEvent(t, vendeurConn)
	assert.Equal(t, EventPermissionsUpdated, event.Type)
	assert.Equal(t, "vendeur", event.Role)

	event = readEvent(t, adminConn)
	assert.Equal(t, "vendeur", event.Role)

	// Sessions holding an unrelated role hear nothing.
	require.NoError(t, otherConn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := otherConn.ReadMessage()
	assert.Error(t, err, "unrelated roles must not receive the event")
}

func TestHubWants(t *testing.T) {
	hub := NewHub()
	update := Event{Type: EventPermissionsUpdated, Role: "vendeur"}

	assert.True(t, hub.wants(&Client{Role: "vendeur"}, update))
	assert.True(t, hub.wants(&Client{Role: rbac.SuperuserRole}, update))
	assert.False(t, hub.wants(&Client{Role: "comptable"}, update))

	// Events without a role scope go to everyone.
	broadcast := Event{Type: "system.notice"}
	assert.True(t, hub.wants(&Client{Role: "comptable"}, broadcast))
}
