package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// FileName is the config file looked up in the working directory.
const FileName = "ai-pair-config.json"

// optionsSchema constrains the config file before it is decoded.
const optionsSchema = `{
  "type": "object",
  "properties": {
    "model": {"type": "string"},
    "escalationModel": {"type": "string"},
    "escalateToPremiumModel": {"type": "boolean"},
    "projectRoot": {"type": "string"},
    "srcDir": {"type": "string"},
    "testSourceDir": {"type": "string"},
    "testDir": {"type": "string"},
    "testResultsDir": {"type": "string"},
    "extension": {"type": "string", "pattern": "^\\."},
    "tmpDir": {"type": "string"},
    "promptsPath": {"type": "string"},
    "logLevel": {"type": "string", "enum": ["debug", "info", "warn", "warning", "error"]},
    "anthropicApiKey": {"type": "string"},
    "openaiApiKey": {"type": "string"},
    "geminiApiKey": {"type": "string"},
    "numRetries": {"type": "integer", "minimum": 1},
    "autoWatch": {"type": "boolean"},
    "maxTokens": {"type": "integer", "minimum": 1},
    "temperature": {"type": "number", "minimum": 0, "maximum": 2},
    "systemPrompt": {"type": "string"},
    "promptTemplate": {"type": "string"},
    "noIssuePromptTemplate": {"type": "string"}
  }
}`

// Manager handles loading and saving the project config file.
type Manager struct {
	path string
}

// NewManager creates a manager for the config file in dir. An empty dir
// means the current working directory.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		dir = wd
	}
	return &Manager{path: filepath.Join(dir, FileName)}, nil
}

// NewManagerForFile creates a manager for an explicit config file path.
func NewManagerForFile(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the absolute path to the config file.
func (m *Manager) Path() string {
	return m.path
}

// Load reads and validates the config file.
// If the file does not exist, it returns nil and no error.
func (m *Manager) Load() (*Options, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseOptions(data)
}

// ParseOptions validates raw JSON against the options schema and decodes it.
func ParseOptions(data []byte) (*Options, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(optionsSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("config file is invalid: %s", strings.Join(msgs, "; "))
	}

	var opts Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	return &opts, nil
}

// Save writes opts to disk with restricted permissions (0600) since it may
// carry API keys.
func (m *Manager) Save(opts Options) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if the config file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return !os.IsNotExist(err)
}
