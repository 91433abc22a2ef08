package enroll

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VioletBL/fingerprint-sensor/internal/presence"
	"github.com/VioletBL/fingerprint-sensor/internal/protocol"
)

// localHostRequest creates an httptest request that appears to come from
// localhost, which tsweb.AllowDebugAccess lets through.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAdminRoutes_Status(t *testing.T) {
	f := newFixture(t, presence.NewScript(false), testConfig())
	mux := http.NewServeMux()
	f.enroller.AttachAdminRoutes(mux)

	t.Run("before any session", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/enroll-status", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var st status
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
		assert.Nil(t, st.Session)
		assert.Equal(t, Stats{}, st.Stats)
	})

	f.sim.Script(protocol.InsCreateModel, 0x0A)
	f.enroller.Enroll(context.Background(), 3)

	t.Run("after a failed session", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/enroll-status", nil))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		body := w.Body.String()
		assert.Contains(t, body, `"state":"Failed"`)
		assert.Contains(t, body, `"failed_in":"CreateModel"`)
		assert.Contains(t, body, "model mismatch")
		assert.Contains(t, body, `"failed":1`)
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, localHostRequest(http.MethodPost, "/debug/enroll-status", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestAdminRoutes_TailMethodNotAllowed(t *testing.T) {
	f := newFixture(t, presence.NewScript(false), testConfig())
	mux := http.NewServeMux()
	f.enroller.AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, localHostRequest(http.MethodPost, "/debug/enroll-tail", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAdminRoutes_TailStreamsTransitions(t *testing.T) {
	f := newFixture(t, presence.NewScript(false), testConfig())
	mux := http.NewServeMux()
	f.enroller.AttachAdminRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/debug/enroll-tail", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": ping\n", line)

	// the ping is written after subscribing, so nothing published now is lost
	f.enroller.Enroll(context.Background(), 5)

	var states []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var snap struct {
			State string `json:"state"`
		}
		require.NoError(t, json.Unmarshal([]byte(data), &snap))
		states = append(states, snap.State)
		if snap.State == "Completed" {
			break
		}
	}
	assert.Equal(t, "Idle", states[0])
	assert.Len(t, states, 9)
}
