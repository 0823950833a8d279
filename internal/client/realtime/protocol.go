package realtime

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Phoenix channel events used by the realtime service.
const (
	eventJoin            = "phx_join"
	eventLeave           = "phx_leave"
	eventReply           = "phx_reply"
	eventError           = "phx_error"
	eventClose           = "phx_close"
	eventHeartbeat       = "heartbeat"
	eventSystem          = "system"
	eventPostgresChanges = "postgres_changes"

	topicPhoenix = "phoenix"

	protocolVersion = "1.0.0"
)

// message is one Phoenix v1 frame.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type systemPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

type joinConfig struct {
	Broadcast       broadcastConfig  `json:"broadcast"`
	Presence        presenceConfig   `json:"presence"`
	PostgresChanges []postgresChange `json:"postgres_changes"`
}

type broadcastConfig struct {
	Self bool `json:"self"`
	Ack  bool `json:"ack"`
}

type presenceConfig struct {
	Key string `json:"key"`
}

type postgresChange struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type changesPayload struct {
	Data ChangeEvent `json:"data"`
}

// ChangeEvent is one row change delivered on a channel.
type ChangeEvent struct {
	Type            string          `json:"type"`
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	CommitTimestamp string          `json:"commit_timestamp"`
	Record          json.RawMessage `json:"record,omitempty"`
	OldRecord       json.RawMessage `json:"old_record,omitempty"`
}

// ChannelSpec selects the row changes a channel listens to. Event defaults
// to "*" (INSERT, UPDATE and DELETE).
type ChannelSpec struct {
	Schema string
	Table  string
	Filter string
	Event  string
}

// Topic is the channel topic derived from the spec.
func (s ChannelSpec) Topic() string {
	parts := []string{"realtime", s.Schema, s.Table}
	if s.Filter != "" {
		parts = append(parts, s.Filter)
	}
	return strings.Join(parts, ":")
}

func (s ChannelSpec) change() postgresChange {
	ev := s.Event
	if ev == "" {
		ev = "*"
	}
	return postgresChange{Event: ev, Schema: s.Schema, Table: s.Table, Filter: s.Filter}
}

// URLFromBase derives the websocket endpoint from the backend's HTTP base URL.
func URLFromBase(base *url.URL) string {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u = *u.JoinPath("realtime", "v1", "websocket")
	u.RawQuery = ""
	return u.String()
}
