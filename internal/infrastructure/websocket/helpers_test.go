package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"learnhub/internal/infrastructure/auth"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// newTestClient returns a client with no socket; tests read what it would
// have written from its send buffer.
func newTestClient(userID string) *Client {
	c := NewClient(nil, ClientOptions{SendBuffer: 32})
	c.Bind(&auth.Identity{UserID: userID, Username: userID})
	c.MarkIdle()
	return c
}

func nextFrame(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case payload := <-c.send:
		var f frame
		require.NoError(t, json.Unmarshal(payload, &f))
		return f
	case <-time.After(time.Second):
		t.Fatalf("no frame for %s", c.UserID())
	}
	return frame{}
}

func pendingEvents(c *Client) []string {
	var events []string
	for {
		select {
		case payload := <-c.send:
			var f frame
			if json.Unmarshal(payload, &f) == nil {
				events = append(events, f.Event)
			}
		default:
			return events
		}
	}
}
