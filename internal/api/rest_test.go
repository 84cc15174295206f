package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hbomb79/batchconv/internal/activity"
	"github.com/hbomb79/batchconv/internal/api"
	"github.com/hbomb79/batchconv/internal/api/jobs"
	"github.com/hbomb79/batchconv/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type socketMessage struct {
	Title     string         `json:"title"`
	Arguments map[string]any `json:"arguments"`
	Id        int            `json:"id"`
	Type      int            `json:"type"`
}

type monitor struct {
	bus       event.EventCoordinator
	baseURL   string
	socketURL string
	cancelled chan uuid.UUID
}

// startMonitor wires an activity service and rest gateway together, the same
// way the CLI does, and serves it on an ephemeral port.
func startMonitor(t *testing.T, runningJob uuid.UUID) *monitor {
	bus := event.New()
	service := activity.New(bus)
	cancelled := make(chan uuid.UUID, 1)
	cancelJob := func(id uuid.UUID) error {
		if id != runningJob {
			return jobs.ErrUnknownJob
		}

		cancelled <- id
		return nil
	}

	gateway := api.NewRestGateway(&api.RestConfig{HostAddr: "127.0.0.1:0"}, service, cancelJob)
	service.RegisterBroadcaster(gateway)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() {
		assert.NoError(t, service.Run(ctx))
		done <- struct{}{}
	}()
	go func() {
		assert.NoError(t, gateway.Run(ctx))
		done <- struct{}{}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})

	addrCtx, addrCancel := context.WithTimeout(ctx, 5*time.Second)
	defer addrCancel()
	addr, err := gateway.Addr(addrCtx)
	require.NoError(t, err)

	m := &monitor{
		bus:       bus,
		baseURL:   fmt.Sprintf("http://%s/api/batchconv/v1", addr),
		socketURL: fmt.Sprintf("ws://%s/api/batchconv/v1/activity/ws/", addr),
		cancelled: cancelled,
	}

	return m
}

func getSnapshot(t *testing.T, url string) (int, activity.JobSnapshot) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var snapshot activity.JobSnapshot
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	}

	return resp.StatusCode, snapshot
}

func Test_JobEndpoints(t *testing.T) {
	jobID := uuid.New()
	m := startMonitor(t, jobID)

	m.bus.Dispatch(event.JOB_START, event.JobPayload{JobID: jobID, SourceFormat: "mp3", TargetFormat: "wav", Total: 4})
	m.bus.Dispatch(event.JOB_PROGRESS, event.ProgressPayload{JobID: jobID, Completed: 1, Succeeded: 1, Total: 4})

	status, snapshot := getSnapshot(t, m.baseURL+"/job/")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, jobID, snapshot.ID)
	assert.Equal(t, "wav", snapshot.TargetFormat)
	assert.Equal(t, 1, snapshot.Completed)
	assert.Equal(t, 25.0, snapshot.Percent)

	// Trailing slash is added automatically
	status, snapshot = getSnapshot(t, fmt.Sprintf("%s/job/%s", m.baseURL, jobID))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, jobID, snapshot.ID)

	status, _ = getSnapshot(t, fmt.Sprintf("%s/job/%s/", m.baseURL, uuid.New()))
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = getSnapshot(t, m.baseURL+"/job/not-a-uuid/")
	assert.Equal(t, http.StatusBadRequest, status)
}

func Test_CancelEndpoint(t *testing.T) {
	jobID := uuid.New()
	m := startMonitor(t, jobID)

	resp, err := http.Post(fmt.Sprintf("%s/job/%s/cancel/", m.baseURL, jobID), "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, jobID, <-m.cancelled)

	resp, err = http.Post(fmt.Sprintf("%s/job/%s/cancel/", m.baseURL, uuid.New()), "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_ActivitySocket(t *testing.T) {
	jobID := uuid.New()
	m := startMonitor(t, jobID)
	m.bus.Dispatch(event.JOB_START, event.JobPayload{JobID: jobID, Total: 2})

	// The socket hub starts alongside the HTTP server, and refuses
	// connections until it is running
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial(m.socketURL, nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 5*time.Second, 10*time.Millisecond)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var welcome socketMessage
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "CONNECTION_ESTABLISHED", welcome.Title)
	assert.Contains(t, welcome.Arguments, "client")
	assert.Equal(t, jobID.String(), welcome.Arguments["job"].(map[string]any)["id"])

	m.bus.Dispatch(event.JOB_COMPLETE, event.JobPayload{JobID: jobID, Total: 2, Succeeded: 2})

	var update socketMessage
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, api.TITLE_JOB_UPDATE, update.Title)
	job := update.Arguments["job"].(map[string]any)
	assert.Equal(t, string(activity.JobComplete), job["state"])
	assert.EqualValues(t, 2, job["succeeded"])

	// Socket commands
	require.NoError(t, conn.WriteJSON(map[string]any{"title": api.COMMAND_CANCEL, "id": 7, "type": 1, "arguments": map[string]any{"job_id": jobID.String()}}))
	var reply socketMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "COMMAND_SUCCESS", reply.Title)
	assert.Equal(t, 7, reply.Id)
	assert.Equal(t, jobID, <-m.cancelled)

	require.NoError(t, conn.WriteJSON(map[string]any{"title": api.COMMAND_CANCEL, "id": 8, "type": 1, "arguments": map[string]any{}}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "COMMAND_FAILURE", reply.Title)
	assert.Equal(t, 8, reply.Id)

	require.NoError(t, conn.WriteJSON(map[string]any{"title": "NOT_A_COMMAND", "id": 9, "type": 1}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "COMMAND_FAILURE", reply.Title)
	assert.Equal(t, "Unknown command", reply.Arguments["error"])
}
