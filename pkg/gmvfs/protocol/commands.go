package protocol

import "encoding/json"

// GetFullVfs fetches the flattened graph of the project root.
type GetFullVfs struct{}

func (GetFullVfs) Category() Category     { return CategoryVfs }
func (GetFullVfs) Kind() Kind             { return KindGetFullVfs }
func (GetFullVfs) bindResult(FolderGraph) {}

// GetFolderVfs fetches the flattened graph of a single folder.
type GetFolderVfs struct {
	Folder ViewPath `json:"folder"`
}

func (GetFolderVfs) Category() Category     { return CategoryVfs }
func (GetFolderVfs) Kind() Kind             { return KindGetFolderVfs }
func (GetFolderVfs) bindResult(FolderGraph) {}

// CreateFolderVfs creates a folder named Name inside Folder.
type CreateFolderVfs struct {
	Folder ViewPath `json:"folder"`
	Name   string   `json:"name"`
}

func (CreateFolderVfs) Category() Category       { return CategoryVfs }
func (CreateFolderVfs) Kind() Kind               { return KindCreateFolder }
func (CreateFolderVfs) bindResult(CreatedFolder) {}

// RenameFolderVfs renames Folder in place.
type RenameFolderVfs struct {
	Folder  ViewPath `json:"folder"`
	NewName string   `json:"newName"`
}

func (RenameFolderVfs) Category() Category { return CategoryVfs }
func (RenameFolderVfs) Kind() Kind         { return KindRenameFolder }
func (RenameFolderVfs) bindResult(Empty)   {}

// RemoveFolderVfs deletes Folder. Without Recursive the server refuses to
// delete a non-empty folder.
type RemoveFolderVfs struct {
	Folder    ViewPath `json:"folder"`
	Recursive bool     `json:"recursive"`
}

func (RemoveFolderVfs) Category() Category { return CategoryVfs }
func (RemoveFolderVfs) Kind() Kind         { return KindRemoveFolder }
func (RemoveFolderVfs) bindResult(Empty)   {}

// AddResource registers a resource document built by CreateResourceYyFile.
type AddResource struct {
	Resource       ResourceKind    `json:"resource"`
	Data           json.RawMessage `json:"newResource"`
	AssociatedData SerializedData  `json:"associatedData"`
}

func (AddResource) Category() Category { return CategoryResource }
func (AddResource) Kind() Kind         { return KindAddResource }
func (AddResource) bindResult(Empty)   {}

// RemoveResource deletes a resource by name.
type RemoveResource struct {
	Resource ResourceKind `json:"resource"`
	Name     string       `json:"identifier"`
}

func (RemoveResource) Category() Category { return CategoryResource }
func (RemoveResource) Kind() Kind         { return KindRemoveResource }
func (RemoveResource) bindResult(Empty)   {}

// RenameResource renames a resource.
type RenameResource struct {
	Resource ResourceKind `json:"resource"`
	Name     string       `json:"identifier"`
	NewName  string       `json:"newName"`
}

func (RenameResource) Category() Category { return CategoryResource }
func (RenameResource) Kind() Kind         { return KindRenameResource }
func (RenameResource) bindResult(Empty)   {}

// GetAssociatedDataResource fetches a resource's associated data; for
// objects that is the JSON map of its events.
type GetAssociatedDataResource struct {
	Resource ResourceKind `json:"resource"`
	Name     string       `json:"identifier"`
	Force    bool         `json:"force"`
}

func (GetAssociatedDataResource) Category() Category        { return CategoryResource }
func (GetAssociatedDataResource) Kind() Kind                { return KindGetAssociatedData }
func (GetAssociatedDataResource) bindResult(AssociatedData) {}

// CreateResourceYyFile asks the server to build a default resource document.
type CreateResourceYyFile struct {
	Resource     ResourceKind `json:"resource"`
	Name         string       `json:"name"`
	ParentFolder ViewPath     `json:"parentFolder"`
}

func (CreateResourceYyFile) Category() Category         { return CategoryUtilities }
func (CreateResourceYyFile) Kind() Kind                 { return KindCreateResourceYyFile }
func (CreateResourceYyFile) bindResult(CreatedResource) {}

// CanUseResourceName checks that Name is syntactically valid and not taken
// by any resource.
type CanUseResourceName struct {
	Name string `json:"name"`
}

func (CanUseResourceName) Category() Category      { return CategoryUtilities }
func (CanUseResourceName) Kind() Kind              { return KindCanUseResourceName }
func (CanUseResourceName) bindResult(NameValidity) {}

// CanUseFolderName checks that Name can be created inside Folder.
type CanUseFolderName struct {
	Folder ViewPath `json:"folder"`
	Name   string   `json:"name"`
}

func (CanUseFolderName) Category() Category      { return CategoryUtilities }
func (CanUseFolderName) Kind() Kind              { return KindCanUseFolderName }
func (CanUseFolderName) bindResult(NameValidity) {}

// PrettyEventNames converts event file base names to display names.
type PrettyEventNames struct {
	EventNames []string `json:"eventNames"`
}

func (PrettyEventNames) Category() Category    { return CategoryUtilities }
func (PrettyEventNames) Kind() Kind            { return KindPrettyEventNames }
func (PrettyEventNames) bindResult(EventNames) {}

// ScriptGmlPath resolves the absolute path of a script's source file.
type ScriptGmlPath struct {
	ScriptName string `json:"scriptName"`
}

func (ScriptGmlPath) Category() Category       { return CategoryUtilities }
func (ScriptGmlPath) Kind() Kind               { return KindScriptGmlPath }
func (ScriptGmlPath) bindResult(RequestedPath) {}

// EventGmlPath resolves the absolute path of an object event's source file.
type EventGmlPath struct {
	ObjectName    string `json:"objectName"`
	EventFileName string `json:"eventFileName"`
}

func (EventGmlPath) Category() Category       { return CategoryUtilities }
func (EventGmlPath) Kind() Kind               { return KindEventGmlPath }
func (EventGmlPath) bindResult(RequestedPath) {}

// CreateEvent adds an event to an object.
type CreateEvent struct {
	ObjectName    string `json:"objectName"`
	EventFileName string `json:"eventFileName"`
}

func (CreateEvent) Category() Category { return CategoryEvent }
func (CreateEvent) Kind() Kind         { return KindCreateEvent }
func (CreateEvent) bindResult(Empty)   {}

// DeleteEvent removes an event from an object.
type DeleteEvent struct {
	ObjectName    string `json:"objectName"`
	EventFileName string `json:"eventFileName"`
}

func (DeleteEvent) Category() Category { return CategoryEvent }
func (DeleteEvent) Kind() Kind         { return KindDeleteEvent }
func (DeleteEvent) bindResult(Empty)   {}

// SerializationCheckpoint makes the server flush its in-memory project model
// to disk.
type SerializationCheckpoint struct{}

func (SerializationCheckpoint) Category() Category { return CategorySerialize }
func (SerializationCheckpoint) Kind() Kind         { return KindSerialize }
func (SerializationCheckpoint) bindResult(Empty)   {}

// GetProjectMetadata re-reads the project constants reported at startup.
type GetProjectMetadata struct{}

func (GetProjectMetadata) Category() Category         { return CategoryProjectInfo }
func (GetProjectMetadata) Kind() Kind                 { return KindProjectInfo }
func (GetProjectMetadata) bindResult(ProjectMetadata) {}

// Shutdown tells the server to exit. It has no response.
type Shutdown struct{}

func (Shutdown) Category() Category { return CategoryShutdown }
func (Shutdown) Kind() Kind         { return KindShutdown }
