package vfs

import (
	"fmt"

	"github.com/tsarna/gmvfs/pkg/gmvfs/events"
	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
)

// NodeKind discriminates the variants of Node.
type NodeKind int

const (
	KindFolder NodeKind = iota
	KindResource
	KindEvent
	KindShaderStage
)

func (k NodeKind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindResource:
		return "resource"
	case KindEvent:
		return "event"
	case KindShaderStage:
		return "shader-stage"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// ShaderStage names one of the two source files of a shader.
type ShaderStage string

const (
	StageFragment ShaderStage = "fragment"
	StageVertex   ShaderStage = "vertex"
)

// Node is one entry of the project tree. Which fields are meaningful
// depends on Kind:
//
//	KindFolder       ViewPath
//	KindResource     Resource, FilesystemPath, ParentLocation
//	KindEvent        EventFile, Event, Object
//	KindShaderStage  Stage, Object
//
// Name is always set: the folder or resource name, the event's display
// name, or the stage name. Nodes are created by the Tree and must not be
// modified by callers.
type Node struct {
	Kind NodeKind
	Name string

	ViewPath protocol.ViewPath

	Resource       protocol.ResourceKind
	FilesystemPath protocol.FilesystemPath
	ParentLocation string

	EventFile string
	Event     events.Kind
	Object    string

	Stage ShaderStage

	parent *Node

	// Guarded by the owning Tree's mutex.
	gen      uint64
	detached bool
}

// Parent returns the containing node, or nil for top-level nodes.
func (n *Node) Parent() *Node {
	return n.parent
}

// Expandable reports whether the node can have children.
func (n *Node) Expandable() bool {
	switch n.Kind {
	case KindFolder:
		return true
	case KindResource:
		return n.Resource == protocol.ResourceObject || n.Resource == protocol.ResourceShader
	}
	return false
}

// Label is the text shown for the node. Scripts and events are labelled
// with the name of their source file.
func (n *Node) Label() string {
	switch n.Kind {
	case KindResource:
		if n.Resource == protocol.ResourceScript {
			return n.Name + ".gml"
		}
	case KindEvent:
		return n.Name + ".gml"
	case KindShaderStage:
		if n.Stage == StageVertex {
			return n.Object + ".vsh"
		}
		return n.Object + ".fsh"
	}
	return n.Name
}

// Tooltip is the hover text for the node.
func (n *Node) Tooltip() string {
	switch n.Kind {
	case KindResource:
		return fmt.Sprintf("%s (%s)", n.Label(), n.Resource)
	case KindEvent:
		return fmt.Sprintf("%s (%s)", n.Label(), n.EventFile)
	}
	return n.Label()
}

// ID is stable across refreshes for as long as the underlying entry keeps
// its location and name.
func (n *Node) ID() string {
	switch n.Kind {
	case KindFolder:
		return n.ViewPath.Path + n.Name
	case KindResource:
		return n.FilesystemPath.Path + n.Label()
	case KindEvent:
		return n.Object + n.Label()
	case KindShaderStage:
		return n.Object + "/" + string(n.Stage)
	}
	return n.Name
}

// Path is the hierarchical location used in change topics: the view path of
// a folder, the filesystem path of a resource, or the owner's path plus the
// child's file name for events and shader stages.
func (n *Node) Path() string {
	switch n.Kind {
	case KindFolder:
		return n.ViewPath.Path
	case KindResource:
		return n.FilesystemPath.Path
	case KindEvent:
		if n.parent != nil {
			return n.parent.Path() + "/" + n.EventFile
		}
		return n.Object + "/" + n.EventFile
	case KindShaderStage:
		if n.parent != nil {
			return n.parent.Path() + "/" + string(n.Stage)
		}
		return n.Object + "/" + string(n.Stage)
	}
	return n.Name
}

func (n *Node) String() string {
	return fmt.Sprintf("%s %s", n.Kind, n.Path())
}

func newFolderNode(vp protocol.ViewPath, parent *Node) *Node {
	return &Node{Kind: KindFolder, Name: vp.Name, ViewPath: vp, parent: parent}
}

func newResourceNode(entry protocol.FileEntry, parent *Node) *Node {
	return &Node{
		Kind:           KindResource,
		Name:           entry.FilesystemPath.Name,
		Resource:       entry.Descriptor.Resource,
		FilesystemPath: entry.FilesystemPath,
		ParentLocation: entry.Descriptor.ParentLocation,
		parent:         parent,
	}
}

func newEventNode(pretty, fileName string, object *Node) *Node {
	return &Node{
		Kind:      KindEvent,
		Name:      pretty,
		EventFile: fileName,
		Event:     events.FromFileName(fileName),
		Object:    object.Name,
		parent:    object,
	}
}

func newStageNode(stage ShaderStage, shader *Node) *Node {
	return &Node{
		Kind:   KindShaderStage,
		Name:   string(stage),
		Stage:  stage,
		Object: shader.Name,
		parent: shader,
	}
}
