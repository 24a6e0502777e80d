// Package protocol defines the typed command/response contract spoken with
// the project server and the generic round-trip that enforces it.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Category is the top-level discriminant of a wire command.
type Category string

const (
	CategoryVfs         Category = "Vfs"
	CategoryResource    Category = "Resource"
	CategoryUtilities   Category = "Utilities"
	CategoryEvent       Category = "Event"
	CategorySerialize   Category = "Serialize"
	CategoryProjectInfo Category = "ProjectInfo"
	CategoryShutdown    Category = "Shutdown"
)

// Flat reports whether commands of this category are sent without a
// subCommand object.
func (c Category) Flat() bool {
	switch c {
	case CategorySerialize, CategoryProjectInfo, CategoryShutdown:
		return true
	}
	return false
}

// Kind is the discriminant of a single command within its category.
type Kind string

const (
	KindGetFullVfs           Kind = "GetFullVfs"
	KindGetFolderVfs         Kind = "GetFolderVfs"
	KindCreateFolder         Kind = "CreateFolderVfs"
	KindRenameFolder         Kind = "RenameFolderVfs"
	KindRemoveFolder         Kind = "RemoveFolderVfs"
	KindAddResource          Kind = "AddResource"
	KindRemoveResource       Kind = "RemoveResource"
	KindRenameResource       Kind = "RenameResource"
	KindGetAssociatedData    Kind = "GetAssociatedDataResource"
	KindCreateResourceYyFile Kind = "CreateResourceYyFile"
	KindCanUseResourceName   Kind = "CanUseResourceName"
	KindCanUseFolderName     Kind = "CanUseFolderName"
	KindPrettyEventNames     Kind = "PrettyEventNames"
	KindScriptGmlPath        Kind = "ScriptGmlPath"
	KindEventGmlPath         Kind = "EventGmlPath"
	KindCreateEvent          Kind = "CreateEvent"
	KindDeleteEvent          Kind = "DeleteEvent"
	KindSerialize            Kind = "Serialize"
	KindProjectInfo          Kind = "ProjectInfo"
	KindShutdown             Kind = "Shutdown"
)

// Descriptor is implemented by every command value.
type Descriptor interface {
	Category() Category
	Kind() Kind
}

// Command is a request whose successful result decodes to R. Each concrete
// command implements Command for exactly one R, so the result type of a
// round trip is fixed by the command's type.
type Command[R any] interface {
	Descriptor
	bindResult(R)
}

// Envelope is the outer wire shape of a command.
type Envelope struct {
	Type       Category        `json:"type"`
	SubCommand json.RawMessage `json:"subCommand,omitempty"`
}

// Encode serializes a command with both discriminants preserved.
func Encode(cmd Descriptor) ([]byte, error) {
	env := Envelope{Type: cmd.Category()}

	if !cmd.Category().Flat() {
		fields, err := json.Marshal(cmd)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", cmd.Kind(), err)
		}

		obj := make(map[string]json.RawMessage)
		if err := json.Unmarshal(fields, &obj); err != nil {
			return nil, fmt.Errorf("%s is not a JSON object: %w", cmd.Kind(), err)
		}

		kind, _ := json.Marshal(cmd.Kind())
		obj["type"] = kind

		env.SubCommand, err = json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", cmd.Kind(), err)
		}
	}

	return json.Marshal(env)
}

// Decode splits a wire command into its envelope and command kind. The
// subCommand body is left for the receiver to unmarshal into the matching
// command struct.
func Decode(data []byte) (Envelope, Kind, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, "", fmt.Errorf("decode command: %w", err)
	}

	if env.Type.Flat() {
		return env, Kind(env.Type), nil
	}

	var head struct {
		Type Kind `json:"type"`
	}
	if len(env.SubCommand) == 0 {
		return env, "", fmt.Errorf("decode command: %s command without subCommand", env.Type)
	}
	if err := json.Unmarshal(env.SubCommand, &head); err != nil {
		return env, "", fmt.Errorf("decode command: %w", err)
	}
	if head.Type == "" {
		return env, "", fmt.Errorf("decode command: %s subCommand without type", env.Type)
	}

	return env, head.Type, nil
}
