package models

import (
	"encoding/json"
	"fmt"
)

// GuildEvent is an event produced outside the process for one guild's subscribers
type GuildEvent struct {
	GuildID string          `json:"guildId"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// ParseGuildEvent decodes and validates a NOTIFY payload
func ParseGuildEvent(payload []byte) (*GuildEvent, error) {
	var event GuildEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode guild event: %w", err)
	}
	if !IsSnowflake(event.GuildID) {
		return nil, fmt.Errorf("invalid guild id %q", event.GuildID)
	}
	if event.Event == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if len(event.Data) == 0 {
		event.Data = json.RawMessage("null")
	}
	return &event, nil
}
