package protocol

import (
	"encoding/json"
	"fmt"
)

// ServerInfo holds the commonly used fields of a server-info document.
// The document itself stays opaque to the client; this is a display helper.
type ServerInfo struct {
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	Version          string       `json:"version"`
	RequiresPassword bool         `json:"requiresPassword"`
	Players          int          `json:"players"`
	MaxPlayers       int          `json:"maxPlayers"`
	Provider         ProviderInfo `json:"provider"`
}

// ProviderInfo describes who runs the server.
type ProviderInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Website string `json:"website"`
}

// ParseServerInfo decodes the known fields of a server-info document.
// Unknown fields are ignored.
func ParseServerInfo(doc string) (*ServerInfo, error) {
	info := &ServerInfo{}
	if err := json.Unmarshal([]byte(doc), info); err != nil {
		return nil, fmt.Errorf("failed to parse server info: %w", err)
	}
	return info, nil
}
