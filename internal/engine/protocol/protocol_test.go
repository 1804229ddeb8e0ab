package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
)

func TestTypes_ClosedSet(t *testing.T) {
	assert.Len(t, Types, 13)
	seen := map[MessageType]bool{}
	for _, ty := range Types {
		assert.False(t, seen[ty], "duplicate %s", ty)
		seen[ty] = true
	}
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Command
		wantErr string
	}{
		{
			name:  "view build log",
			input: `{"type":"viewBuildLog","cycleNumber":2,"logType":"build","stage":"result"}`,
			want:  ViewLogCommand{Type: TypeViewBuildLog, CycleNumber: 2, LogType: "build", Stage: "result"},
		},
		{
			name:  "view diff",
			input: `{"type":"viewDiff","cycleNumber":1,"filePath":"src/main/java/App.java"}`,
			want:  ViewDiffCommand{Type: TypeViewDiff, CycleNumber: 1, FilePath: "src/main/java/App.java"},
		},
		{
			name:  "start with hint is trimmed",
			input: `{"type":"startWithHint","hint":"  check null handling "}`,
			want:  StartWithHintCommand{Type: TypeStartWithHint, Hint: "check null handling"},
		},
		{name: "start", input: `{"type":"startAIPair"}`, want: SimpleCommand{Type: TypeStartAIPair}},
		{name: "stop", input: `{"type":"stopAIPair"}`, want: SimpleCommand{Type: TypeStopAIPair}},
		{name: "settings", input: `{"type":"openSettings"}`, want: SimpleCommand{Type: TypeOpenSettings}},
		{name: "logs", input: `{"type":"requestLogs"}`, want: SimpleCommand{Type: TypeRequestLogs}},
		{name: "state", input: `{"type":"requestState"}`, want: SimpleCommand{Type: TypeRequestState}},
		{name: "missing cycle", input: `{"type":"viewTestLog"}`, wantErr: "positive cycleNumber"},
		{name: "diff without path", input: `{"type":"viewDiff","cycleNumber":1}`, wantErr: "filePath"},
		{name: "empty hint", input: `{"type":"startWithHint","hint":"   "}`, wantErr: "requires hint"},
		{name: "outbound kind", input: `{"type":"stateUpdate"}`, wantErr: "sent by the engine"},
		{name: "unknown", input: `{"type":"reboot"}`, wantErr: "unknown message type"},
		{name: "no type", input: `{}`, wantErr: "no type"},
		{name: "not json", input: `nope`, wantErr: "decode command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViewLogCommand_Artifact(t *testing.T) {
	assert.Equal(t, "build_result", ViewLogCommand{Type: TypeViewBuildLog}.Artifact())
	assert.Equal(t, "test_result", ViewLogCommand{Type: TypeViewTestLog}.Artifact())
	assert.Equal(t, "generation_response", ViewLogCommand{Type: TypeViewGenerationLog}.Artifact())
	assert.Equal(t, "generation_request", ViewLogCommand{Type: TypeViewGenerationLog, Stage: "request"}.Artifact())
}

func TestMarshalEvent(t *testing.T) {
	st := engine.NewCycleState().Snapshot()
	st.AddHint("h1")

	data, err := MarshalEvent(NewStateUpdateEvent("run-1", st))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "stateUpdate", decoded["type"])
	assert.Equal(t, "run-1", decoded["runId"])
	state := decoded["state"].(map[string]any)
	assert.Equal(t, []any{"h1"}, state["accumulatedHints"])
	assert.Equal(t, "idle", state["phase"])

	data, err = MarshalEvent(NewConfigUpdateEvent(config.Public{Model: "gpt-4o"}))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"configUpdate"`)
	assert.Contains(t, string(data), `"model":"gpt-4o"`)

	data, err = MarshalEvent(NewLogUpdateEvent(SourceProcess, 0, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"logUpdate","logs":[],"source":"process"}`, string(data))

	data, err = MarshalEvent(NewDiffEvent(3, Diff{FilePath: "A.java", Original: "a", Updated: "b"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"logUpdate","logs":["Changes to A.java"],"source":"diff","cycleNumber":3,
		"diff":{"filePath":"A.java","original":"a","updated":"b"}}`, string(data))

	ev := NewErrorEvent(errors.New("boom"))
	assert.Equal(t, []string{"boom"}, ev.Logs)
	assert.Equal(t, TypeLogUpdate, ev.GetType())
}
