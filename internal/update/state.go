package update

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/samsaffron/roundtable/internal/config"
)

const stateFileName = "update-check.json"

// State records the outcome of the most recent update check.
type State struct {
	LastChecked     time.Time `json:"last_checked"`
	LatestVersion   string    `json:"latest_version,omitempty"`
	NotifiedVersion string    `json:"notified_version,omitempty"`
	LastNotified    time.Time `json:"last_notified,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

// LoadState reads the persisted update state. A missing file yields an empty
// state, not an error.
func LoadState() (*State, error) {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	return loadStateFromDir(configDir)
}

// SaveState persists the update state to the config directory.
func SaveState(state *State) error {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return err
	}
	return saveStateToDir(configDir, state)
}

func loadStateFromDir(dir string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func saveStateToDir(dir string, state *State) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, stateFileName), data, 0644)
}
