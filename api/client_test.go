package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"LiteChat/models"
)

func envelope(data interface{}) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"code": 200, "message": "success", "data": data,
	})
	return b
}

func TestWaitingSessionsUnwrapsListEnvelope(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/customer-service/waiting-sessions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.Write(envelope(map[string]interface{}{
			"list": []map[string]interface{}{
				{"session_id": "42_7", "user_id": 42, "username": "alice", "status": "waiting"},
			},
			"total": 1,
		}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, func() string { return "tok" })
	sessions, err := c.WaitingSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "42_7", sessions[0].SessionID)
	require.Equal(t, models.SessionWaiting, sessions[0].Status)
	require.Equal(t, "Bearer tok", gotAuth)
}

// 列表接口有的版本直接返回数组，两种形态都要兼容
func TestMySessionsAcceptsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope([]map[string]interface{}{
			{"session_id": "8_3", "status": "active"},
		}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	sessions, err := c.MySessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, models.SessionActive, sessions[0].Status)
}

func TestSessionMessagesSendsPagingParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/chat/sessions/42_7/messages", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "20", r.URL.Query().Get("pageSize"))
		require.Equal(t, "true", r.URL.Query().Get("onlyToday"))
		w.Write(envelope(map[string]interface{}{
			"list":  []map[string]interface{}{{"id": 1, "content": "hi"}},
			"total": 1,
		}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	msgs, err := c.SessionMessages(context.Background(), " 42_7 ", 2, 20, true)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hi", msgs[0].Content)
}

func TestEndSessionPosts(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.Write(envelope(nil))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	require.NoError(t, c.EndSession(context.Background(), "42_7"))
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "/api/v1/chat/sessions/42_7/end", path)
}

// 成功信封里 data 缺失或为 null，按空列表处理而不是报解码错误
func TestMissingDataFieldYieldsEmptyList(t *testing.T) {
	bodies := []string{
		`{"code": 200, "message": "success"}`,
		`{"code": 200, "message": "success", "data": null}`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		c := NewClient(srv.URL, nil)
		sessions, err := c.WaitingSessions(context.Background())
		require.NoError(t, err, "body: %s", body)
		require.Empty(t, sessions)
		srv.Close()
	}
}

func TestBusinessErrorCodeSurfacesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 403, "message": "permission denied"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.WaitingSessions(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "permission denied")
}

func TestHTTPErrorStatusSurfacesAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.MySessions(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestStatistics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/chat/statistics", r.URL.Path)
		w.Write(envelope(map[string]interface{}{
			"totalSessions": 12, "activeSessions": 3, "todaySessions": 2,
		}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	stats, err := c.Statistics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12, stats.TotalSessions)
	require.Equal(t, 3, stats.ActiveSessions)
}
