package protocol

import (
	"encoding/json"
	"fmt"
)

// ViewPath identifies a folder location in the project's virtual hierarchy.
// Path is unique within a project; Name is the display label.
type ViewPath struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (v ViewPath) String() string {
	return v.Path
}

// FilesystemPath identifies a resource. Resource names are unique across all
// resource kinds in a project; the server enforces this.
type FilesystemPath struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ResourceKind is the closed set of resource types a project can hold.
type ResourceKind string

const (
	ResourceSprite         ResourceKind = "Sprite"
	ResourceScript         ResourceKind = "Script"
	ResourceObject         ResourceKind = "Object"
	ResourceShader         ResourceKind = "Shader"
	ResourceNote           ResourceKind = "Note"
	ResourceFont           ResourceKind = "Font"
	ResourceRoom           ResourceKind = "Room"
	ResourceSound          ResourceKind = "Sound"
	ResourcePath           ResourceKind = "Path"
	ResourceSequence       ResourceKind = "Sequence"
	ResourceTileSet        ResourceKind = "TileSet"
	ResourceTimeline       ResourceKind = "Timeline"
	ResourceAnimationCurve ResourceKind = "AnimationCurve"
	ResourceExtension      ResourceKind = "Extension"
)

// ResourceKinds lists every ResourceKind in a stable order.
var ResourceKinds = []ResourceKind{
	ResourceSprite,
	ResourceScript,
	ResourceObject,
	ResourceShader,
	ResourceNote,
	ResourceFont,
	ResourceRoom,
	ResourceSound,
	ResourcePath,
	ResourceSequence,
	ResourceTileSet,
	ResourceTimeline,
	ResourceAnimationCurve,
	ResourceExtension,
}

// Valid reports whether k is a member of the closed enumeration.
func (k ResourceKind) Valid() bool {
	for _, known := range ResourceKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseResourceKind converts a user-supplied string to a ResourceKind.
func ParseResourceKind(s string) (ResourceKind, error) {
	k := ResourceKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown resource kind %q", s)
	}
	return k, nil
}

// ResourceDescriptor is the server's description of a resource entry in a
// folder graph.
type ResourceDescriptor struct {
	Resource       ResourceKind `json:"resource"`
	ParentLocation string       `json:"parentLocation"`
}

// FileEntry is one resource directly contained in a folder.
type FileEntry struct {
	FilesystemPath FilesystemPath     `json:"filesystemPath"`
	Descriptor     ResourceDescriptor `json:"resourceDescriptor"`
}

// FolderGraph is the server-flattened view of one folder: its immediate
// subfolders and resources, in no particular order.
type FolderGraph struct {
	Name     string      `json:"name"`
	ViewPath ViewPath    `json:"viewPath"`
	Folders  []ViewPath  `json:"folders"`
	Files    []FileEntry `json:"files"`
}

// ProjectMetadata holds the constants the server reports at startup.
type ProjectMetadata struct {
	Name        string   `json:"name"`
	Root        ViewPath `json:"rootFolder"`
	IDEVersion  string   `json:"ideVersion,omitempty"`
	ProjectFile string   `json:"yypPath,omitempty"`
}

// DataType discriminates the SerializedData variants.
type DataType string

const (
	DataValue    DataType = "Value"
	DataFilename DataType = "Filename"
	DataDefault  DataType = "Default"
)

// SerializedData carries associated resource data either inline, as the
// path of a single-use temporary file, or as "use the default".
type SerializedData struct {
	Type DataType `json:"dataType"`
	Data string   `json:"data,omitempty"`
}

// DefaultData asks the server to use a resource's default associated data.
func DefaultData() SerializedData {
	return SerializedData{Type: DataDefault}
}

// Empty is the result of commands that report nothing beyond success.
type Empty struct{}

// CreatedFolder is the result of CreateFolderVfs.
type CreatedFolder struct {
	Folder ViewPath `json:"createdFolder"`
}

// AssociatedData is the result of GetAssociatedDataResource.
type AssociatedData struct {
	Data SerializedData `json:"associatedData"`
}

// CreatedResource is the result of CreateResourceYyFile: the server-built
// resource document, passed back verbatim in AddResource.
type CreatedResource struct {
	Resource json.RawMessage `json:"resource"`
}

// NameValidity is the result of the name usability queries.
type NameValidity struct {
	Valid bool `json:"nameIsValid"`
}

// EventNames is the result of PrettyEventNames, index-aligned with the
// request.
type EventNames struct {
	Names []string `json:"eventNames"`
}

// RequestedPath is the result of the path queries.
type RequestedPath struct {
	Path string `json:"requestedPath"`
}
