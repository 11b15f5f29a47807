package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

func TestEventHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewEventHub(nil, 1)
	ch, release := hub.Subscribe()
	assert.Equal(t, 1, hub.Subscribers())

	hub.ScanTransition(dupes.Transition{ScanID: "a", To: dupes.StateFetching})
	hub.ScanTransition(dupes.Transition{ScanID: "a", To: dupes.StateGrouping})
	assert.EqualValues(t, 1, hub.Dropped())
	got := <-ch
	assert.Equal(t, dupes.StateFetching, got.To)

	release()
	release()
	assert.Zero(t, hub.Subscribers())
	_, open := <-ch
	assert.False(t, open)

	hub.Close()
	late, _ := hub.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestEventsWebsocketStreamsScanTransitions(t *testing.T) {
	const secret = "admin-secret"
	env := newTestEnv(t, ServerConfig{AdminJWTSecret: secret})
	ts := httptest.NewServer(env.server)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	token, err := IssueAdminToken(secret, "dashboard", time.Hour, time.Now())
	require.NoError(t, err)
	conn, _, err := websocket.Dial(ctx, wsURL+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := env.do(t, http.MethodPost, "/api/find-duplicates", `{"dryRun":true}`, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var states []dupes.State
	for len(states) == 0 || states[len(states)-1] != dupes.StateDone {
		var transition dupes.Transition
		require.NoError(t, wsjson.Read(ctx, conn, &transition))
		assert.Equal(t, dupes.TriggerBatch, transition.Trigger)
		assert.NotEmpty(t, transition.ScanID)
		states = append(states, transition.To)
	}
	assert.Equal(t, dupes.StateFetching, states[0])
	assert.Contains(t, states, dupes.StateResolving)

	env.hub.Close()
	var ignored dupes.Transition
	err = wsjson.Read(ctx, conn, &ignored)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
