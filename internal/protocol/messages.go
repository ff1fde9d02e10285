package protocol

import (
	"encoding/json"

	"github.com/dr-vortex/annihilation/internal/persistence/snapshot"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Name            string     `json:"name,omitempty"`
	Encoding        string     `json:"encoding,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
	// PlayerID is honoured only when the server runs without auth.
	PlayerID string `json:"player_id,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	PlayerID        string          `json:"player_id"`
	Encoding        string          `json:"encoding"`
	Params          LevelParams     `json:"params"`
	Catalogs        CatalogDigests  `json:"catalogs"`
	Level           *snapshot.Level `json:"level"`
}

type LevelParams struct {
	TickRateHz          int `json:"tick_rate_hz"`
	BroadcastEveryTicks int `json:"broadcast_every_ticks"`
	ActionsPerSecond    int `json:"actions_per_second"`
}

// CatalogDigests lets clients cache catalogs across sessions.
type CatalogDigests struct {
	Items        string `json:"items"`
	Ships        string `json:"ships"`
	Hardpoints   string `json:"hardpoints"`
	Research     string `json:"research"`
	StationParts string `json:"station_parts"`
	Bodies       string `json:"bodies"`
	Tuning       string `json:"tuning,omitempty"`
}

// ACTION (client -> server). Seq is echoed in the RESULT.
type ActionMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Seq             uint64          `json:"seq"`
	Kind            string          `json:"kind"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// Event is one entry of the level's event stream.
type Event struct {
	ID      string         `json:"id"`
	Tick    uint64         `json:"tick"`
	Kind    string         `json:"kind"`
	Emitter string         `json:"emitter,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Events          []Event `json:"events"`
}

// DIFF (server -> client): entity-level change since the previous DIFF.
// Added and Updated are upserts and Removed ids may be unknown to a client
// that joined in between. Full means drop local state and take Added as the
// whole level.
type DiffMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Tick            uint64            `json:"tick"`
	Full            bool              `json:"full,omitempty"`
	Added           []snapshot.Entity `json:"added,omitempty"`
	Removed         []string          `json:"removed,omitempty"`
	Updated         []snapshot.Entity `json:"updated,omitempty"`
}

// ERROR (server -> client) precedes closing the session.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewResult(seq uint64, ok bool, code, msg string, tick uint64) ResultMsg {
	return ResultMsg{
		Type:            TypeResult,
		ProtocolVersion: Version,
		Seq:             seq,
		OK:              ok,
		Code:            code,
		Message:         msg,
		ServerTick:      tick,
	}
}

func NewDiff(tick uint64, c snapshot.Change) DiffMsg {
	return DiffMsg{
		Type:            TypeDiff,
		ProtocolVersion: Version,
		Tick:            tick,
		Added:           c.Added,
		Removed:         c.Removed,
		Updated:         c.Updated,
	}
}
