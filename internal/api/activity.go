package api

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hbomb79/batchconv/internal/activity"
	"github.com/hbomb79/batchconv/internal/api/jobs"
	"github.com/hbomb79/batchconv/internal/http/websocket"
)

const (
	TITLE_JOB_UPDATE = "JOB_UPDATE"
	COMMAND_CANCEL   = "CANCEL_JOB"
)

// broadcaster pushes job updates to every client of the socket hub.
type broadcaster struct {
	socketHub *websocket.SocketHub
}

func newBroadcaster(socketHub *websocket.SocketHub) *broadcaster {
	return &broadcaster{socketHub}
}

func (hub *broadcaster) BroadcastJobUpdate(snapshot activity.JobSnapshot) error {
	if !hub.socketHub.Running() {
		return errors.New("activity socket is not running")
	}

	hub.socketHub.Send(&websocket.SocketMessage{
		Title: TITLE_JOB_UPDATE,
		Body:  map[string]any{"job": snapshot},
		Type:  websocket.Update,
	})

	return nil
}

// handleCancelCommand requests cancellation of the job named by
// the 'job_id' argument of the socket command.
func handleCancelCommand(cancelJob jobs.Canceller) websocket.SocketHandler {
	return func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		if err := message.ValidateArguments(map[string]string{"job_id": "string"}); err != nil {
			return err
		}

		id, err := uuid.Parse(message.Body["job_id"].(string))
		if err != nil {
			return fmt.Errorf("job_id is not a valid UUID: %w", err)
		}

		if err := cancelJob(id); err != nil {
			return err
		}

		hub.Send(message.FormReply(websocket.TitleCommandSuccess, map[string]any{"job_id": id}, websocket.Response))
		return nil
	}
}
