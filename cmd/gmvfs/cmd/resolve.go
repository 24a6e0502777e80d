package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tsarna/gmvfs/pkg/gmvfs/events"
	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
)

// resolveFolder accepts either a view path ("folders/Sprites/Enemies.yy")
// or folder names separated by slashes ("Sprites/Enemies"). The empty
// string and "/" name the project root, returned as nil.
func resolveFolder(ctx context.Context, tree *vfs.Tree, arg string) (*vfs.Node, error) {
	arg = strings.Trim(arg, "/")
	if arg == "" {
		return nil, nil
	}

	if arg == tree.Root().Path || strings.HasSuffix(arg, ".yy") {
		n, err := tree.FindFolder(ctx, arg)
		if errors.Is(err, vfs.ErrNotFound) {
			return nil, fmt.Errorf("no folder %q", arg)
		}
		return n, err
	}

	var current *vfs.Node
	for _, name := range strings.Split(arg, "/") {
		children, err := tree.GetChildren(ctx, current)
		if err != nil {
			return nil, err
		}
		var next *vfs.Node
		for _, child := range children {
			if child.Kind == vfs.KindFolder && child.Name == name {
				next = child
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("no folder %q", arg)
		}
		current = next
	}
	return current, nil
}

func resolveResource(ctx context.Context, tree *vfs.Tree, name string) (*vfs.Node, error) {
	n, err := tree.FindResource(ctx, name)
	if errors.Is(err, vfs.ErrNotFound) {
		return nil, fmt.Errorf("no resource %q", name)
	}
	return n, err
}

func resolveObject(ctx context.Context, tree *vfs.Tree, name string) (*vfs.Node, error) {
	n, err := resolveResource(ctx, tree, name)
	if err != nil {
		return nil, err
	}
	if n.Resource != protocol.ResourceObject {
		return nil, fmt.Errorf("%s is a %s, not an object", name, n.Resource)
	}
	return n, nil
}

// resolveEvent finds the event node of kind under the named object.
func resolveEvent(ctx context.Context, tree *vfs.Tree, object string, kind events.Kind) (*vfs.Node, error) {
	obj, err := resolveObject(ctx, tree, object)
	if err != nil {
		return nil, err
	}
	children, err := tree.GetChildren(ctx, obj)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.Kind == vfs.KindEvent && child.Event == kind {
			return child, nil
		}
	}
	return nil, fmt.Errorf("%s has no %s event", object, kind.Pretty())
}

// parseResourceKind matches a resource kind ignoring case, so "script"
// and "Script" both work.
func parseResourceKind(s string) (protocol.ResourceKind, error) {
	for _, k := range protocol.ResourceKinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return protocol.ParseResourceKind(s)
}

func resourceKindNames() string {
	names := make([]string, len(protocol.ResourceKinds))
	for i, k := range protocol.ResourceKinds {
		names[i] = strings.ToLower(string(k))
	}
	return strings.Join(names, ", ")
}
