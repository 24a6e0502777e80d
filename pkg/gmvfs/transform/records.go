// Package transform turns the project tree into plain data: records that
// can be printed as JSON, filtered with jq and compared between snapshots.
package transform

import (
	"context"

	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
)

// Record is the plain form of a tree node.
type Record struct {
	Kind     string   `json:"kind"`
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	ID       string   `json:"id"`
	Path     string   `json:"path"`
	Resource string   `json:"resource,omitempty"`
	Event    string   `json:"event,omitempty"`
	Children []Record `json:"children,omitempty"`
}

// NewRecord converts n without its children.
func NewRecord(n *vfs.Node) Record {
	r := Record{
		Kind:     n.Kind.String(),
		Name:     n.Name,
		Label:    n.Label(),
		ID:       n.ID(),
		Path:     n.Path(),
		Resource: string(n.Resource),
	}
	if n.Kind == vfs.KindEvent {
		r.Event = n.EventFile
	}
	return r
}

// Records returns the subtree below start (the root when nil) as nested
// records. Depth limits how many levels are expanded; zero or less means
// no limit.
func Records(ctx context.Context, tree *vfs.Tree, start *vfs.Node, depth int) ([]Record, error) {
	var build func(parent *vfs.Node, level int) ([]Record, error)
	build = func(parent *vfs.Node, level int) ([]Record, error) {
		children, err := tree.GetChildren(ctx, parent)
		if err != nil {
			return nil, err
		}

		records := make([]Record, 0, len(children))
		for _, child := range children {
			r := NewRecord(child)
			if child.Expandable() && (depth <= 0 || level+1 < depth) {
				if r.Children, err = build(child, level+1); err != nil {
					return nil, err
				}
			}
			records = append(records, r)
		}
		return records, nil
	}
	return build(start, 0)
}

// Listing flattens records into a map keyed by node path, each value
// holding the record's own fields. It is the form DiffListings compares.
func Listing(records []Record) map[string]any {
	out := make(map[string]any)
	var add func(rs []Record)
	add = func(rs []Record) {
		for _, r := range rs {
			entry := map[string]any{
				"kind":  r.Kind,
				"name":  r.Name,
				"label": r.Label,
			}
			if r.Resource != "" {
				entry["resource"] = r.Resource
			}
			out[r.Path] = entry
			add(r.Children)
		}
	}
	add(records)
	return out
}
