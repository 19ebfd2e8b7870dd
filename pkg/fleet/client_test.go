package fleet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdns/zonekeeper/pkg/log"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true})
}

func TestNodesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/nodes", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response": [
			{"uuid": "n1", "name": "node-1", "address": "10.0.0.1",
			 "isConnected": true, "isDisabled": false,
			 "agentVersion": "1.8.4", "usersOnline": 12},
			{"uuid": "n2", "name": "node-2", "address": "10.0.0.2",
			 "isConnected": false, "isDisabled": false,
			 "agentVersion": "", "usersOnline": 0}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token", 5*time.Second)
	nodes, err := c.Nodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, "node-1", nodes[0].Name)
	assert.Equal(t, "10.0.0.1", nodes[0].Address)
	assert.True(t, nodes[0].Connected)
	assert.Equal(t, "1.8.4", nodes[0].AgentVersion)
	assert.Equal(t, 12, nodes[0].UsersOnline)

	assert.False(t, nodes[1].Connected)
	assert.Empty(t, nodes[1].AgentVersion)
}

func TestNodesRetriesThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"response": [{"uuid": "n1", "address": "10.0.0.1", "isConnected": true, "agentVersion": "1.8.4"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second)
	nodes, err := c.Nodes(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
	assert.Equal(t, 3, calls)
}

func TestNodesFailsAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Nodes(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch fleet snapshot")
}

func TestNodesInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Nodes(context.Background())
	require.Error(t, err)
}

func TestNodesContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Nodes(ctx)
	require.Error(t, err)
}

func TestNodesEmptyFleet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	nodes, err := c.Nodes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
