// Package protocol defines the messages exchanged with the editor. Every
// message is a JSON object whose "type" field is one of the MessageType
// constants; the set is closed.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
)

// MessageType enumerates every message kind.
type MessageType string

const (
	// engine -> editor
	TypeStateUpdate  MessageType = "stateUpdate"
	TypeConfigUpdate MessageType = "configUpdate"
	TypeLogUpdate    MessageType = "logUpdate"

	// editor -> engine
	TypeViewBuildLog      MessageType = "viewBuildLog"
	TypeViewTestLog       MessageType = "viewTestLog"
	TypeViewGenerationLog MessageType = "viewGenerationLog"
	TypeViewDiff          MessageType = "viewDiff"
	TypeStartWithHint     MessageType = "startWithHint"
	TypeStartAIPair       MessageType = "startAIPair"
	TypeStopAIPair        MessageType = "stopAIPair"
	TypeOpenSettings      MessageType = "openSettings"
	TypeRequestLogs       MessageType = "requestLogs"
	TypeRequestState      MessageType = "requestState"
)

// Types lists the closed set of message kinds.
var Types = []MessageType{
	TypeStateUpdate, TypeConfigUpdate, TypeLogUpdate,
	TypeViewBuildLog, TypeViewTestLog, TypeViewGenerationLog, TypeViewDiff,
	TypeStartWithHint, TypeStartAIPair, TypeStopAIPair,
	TypeOpenSettings, TypeRequestLogs, TypeRequestState,
}

// Command is a message sent by the editor.
type Command interface {
	GetType() MessageType
}

// ViewLogCommand asks for one stage artifact of cycle CycleNumber. The
// artifact is named "<logType>_<stage>", e.g. build_result.
type ViewLogCommand struct {
	Type        MessageType `json:"type"`
	CycleNumber int         `json:"cycleNumber"`
	LogType     string      `json:"logType,omitempty"`
	Stage       string      `json:"stage,omitempty"`
}

// GetType implements Command.
func (c ViewLogCommand) GetType() MessageType { return c.Type }

// Artifact returns the artifact name, filling in the defaults of the
// command type when logType or stage are omitted.
func (c ViewLogCommand) Artifact() string {
	logType, stage := c.LogType, c.Stage
	if logType == "" {
		switch c.Type {
		case TypeViewBuildLog:
			logType = "build"
		case TypeViewTestLog:
			logType = "test"
		default:
			logType = "generation"
		}
	}
	if stage == "" {
		stage = "result"
		if logType == "generation" {
			stage = "response"
		}
	}
	return logType + "_" + stage
}

// ViewDiffCommand asks for the before/after content of one file changed in
// cycle CycleNumber.
type ViewDiffCommand struct {
	Type         MessageType `json:"type"`
	CycleNumber  int         `json:"cycleNumber"`
	FilePath     string      `json:"filePath"`
	OriginalPath string      `json:"originalPath,omitempty"`
}

// GetType implements Command.
func (c ViewDiffCommand) GetType() MessageType { return TypeViewDiff }

// StartWithHintCommand starts a run seeded with a user hint.
type StartWithHintCommand struct {
	Type MessageType `json:"type"`
	Hint string      `json:"hint"`
}

// GetType implements Command.
func (c StartWithHintCommand) GetType() MessageType { return TypeStartWithHint }

// SimpleCommand is a command without payload: startAIPair, stopAIPair,
// openSettings, requestLogs and requestState.
type SimpleCommand struct {
	Type MessageType `json:"type"`
}

// GetType implements Command.
func (c SimpleCommand) GetType() MessageType { return c.Type }

type rawMessage struct {
	Type MessageType `json:"type"`
}

// DecodeCommand converts raw JSON into a strongly typed command.
func DecodeCommand(data []byte) (Command, error) {
	var base rawMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch base.Type {
	case TypeViewBuildLog, TypeViewTestLog, TypeViewGenerationLog:
		var cmd ViewLogCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode %s: %w", base.Type, err)
		}
		if cmd.CycleNumber < 1 {
			return nil, fmt.Errorf("%s requires a positive cycleNumber", base.Type)
		}
		return cmd, nil
	case TypeViewDiff:
		var cmd ViewDiffCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode viewDiff: %w", err)
		}
		if cmd.CycleNumber < 1 {
			return nil, errors.New("viewDiff requires a positive cycleNumber")
		}
		if strings.TrimSpace(cmd.FilePath) == "" {
			return nil, errors.New("viewDiff requires filePath")
		}
		return cmd, nil
	case TypeStartWithHint:
		var cmd StartWithHintCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode startWithHint: %w", err)
		}
		cmd.Hint = strings.TrimSpace(cmd.Hint)
		if cmd.Hint == "" {
			return nil, errors.New("startWithHint requires hint")
		}
		return cmd, nil
	case TypeStartAIPair, TypeStopAIPair, TypeOpenSettings, TypeRequestLogs, TypeRequestState:
		return SimpleCommand{Type: base.Type}, nil
	case TypeStateUpdate, TypeConfigUpdate, TypeLogUpdate:
		return nil, fmt.Errorf("%s is sent by the engine, not accepted from clients", base.Type)
	case "":
		return nil, errors.New("message has no type")
	default:
		return nil, fmt.Errorf("unknown message type: %s", base.Type)
	}
}

// Event is a message sent to the editor.
type Event interface {
	isEvent()
	GetType() MessageType
}

// MarshalEvent serializes an event into JSON for NDJSON or websocket
// transport.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

type eventBase struct {
	Type MessageType `json:"type"`
}

func (eventBase) isEvent() {}

// StateUpdateEvent carries a CycleState snapshot.
type StateUpdateEvent struct {
	eventBase
	RunID string            `json:"runId,omitempty"`
	State engine.CycleState `json:"state"`
}

// NewStateUpdateEvent constructs a stateUpdate event.
func NewStateUpdateEvent(runID string, st engine.CycleState) StateUpdateEvent {
	return StateUpdateEvent{
		eventBase: eventBase{Type: TypeStateUpdate},
		RunID:     runID,
		State:     st,
	}
}

// GetType implements Event.
func (e StateUpdateEvent) GetType() MessageType { return e.Type }

// ConfigUpdateEvent carries the shareable view of the run config.
type ConfigUpdateEvent struct {
	eventBase
	Config config.Public `json:"config"`
}

// NewConfigUpdateEvent constructs a configUpdate event.
func NewConfigUpdateEvent(cfg config.Public) ConfigUpdateEvent {
	return ConfigUpdateEvent{
		eventBase: eventBase{Type: TypeConfigUpdate},
		Config:    cfg,
	}
}

// GetType implements Event.
func (e ConfigUpdateEvent) GetType() MessageType { return e.Type }

// Diff is the before/after content of one file.
type Diff struct {
	FilePath string `json:"filePath"`
	Original string `json:"original"`
	Updated  string `json:"updated"`
	Created  bool   `json:"created,omitempty"`
}

// LogUpdateEvent carries log lines. Source names what they came from: the
// process log, a cycle artifact, a diff or an error.
type LogUpdateEvent struct {
	eventBase
	Logs        []string `json:"logs"`
	Source      string   `json:"source,omitempty"`
	CycleNumber int      `json:"cycleNumber,omitempty"`
	Diff        *Diff    `json:"diff,omitempty"`
}

// Log sources.
const (
	SourceProcess = "process"
	SourceDiff    = "diff"
	SourceError   = "error"
)

// NewLogUpdateEvent constructs a logUpdate event. A nil logs slice is
// sent as [].
func NewLogUpdateEvent(source string, cycle int, logs []string) LogUpdateEvent {
	if logs == nil {
		logs = []string{}
	}
	return LogUpdateEvent{
		eventBase:   eventBase{Type: TypeLogUpdate},
		Logs:        logs,
		Source:      source,
		CycleNumber: cycle,
	}
}

// NewDiffEvent constructs the logUpdate answering a viewDiff.
func NewDiffEvent(cycle int, d Diff) LogUpdateEvent {
	ev := NewLogUpdateEvent(SourceDiff, cycle, []string{"Changes to " + d.FilePath})
	ev.Diff = &d
	return ev
}

// NewErrorEvent reports a failed command as a one-line logUpdate.
func NewErrorEvent(err error) LogUpdateEvent {
	return NewLogUpdateEvent(SourceError, 0, []string{err.Error()})
}

// GetType implements Event.
func (e LogUpdateEvent) GetType() MessageType { return e.Type }
