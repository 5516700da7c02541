package domain

import "encoding/json"

// Metadata is returned once by a plugin's load export.
type Metadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
}

// ResultKind tags a PluginResult as either a follow-up task or a
// side-effecting action.
type ResultKind string

const (
	ResultTask   ResultKind = "task"
	ResultAction ResultKind = "action"
)

// PluginResult is one element of the list a plugin's process export
// returns. Exactly one of Task or Action is populated, per Kind.
type PluginResult struct {
	Kind   ResultKind        `json:"kind"`
	Task   *PluginTaskResult `json:"task,omitempty"`
	Action *ActionResult     `json:"action,omitempty"`
}

// PluginTaskResult is the wire shape of a task{...} result variant. Epoch
// fields are u32 seconds, matching the ABI.
type PluginTaskResult struct {
	Name               string          `json:"name"`
	Kind               string          `json:"kind"`
	ProjectCode        string          `json:"project_code"`
	ExternalID         *string         `json:"external_id,omitempty"`
	ExternalModifiedAt *int64          `json:"external_modified_at,omitempty"`
	StartAt            int64           `json:"start_at"`
	Options            json.RawMessage `json:"options"`
}

// ActionResult is the wire shape of an action{...} result variant.
type ActionResult struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}
