package transform

import (
	"sort"

	"github.com/tsarna/go-structdiff"
)

// Changes lists node paths that differ between two listings.
type Changes struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Changed []string `json:"changed,omitempty"`

	// Delta is the structural patch from the old listing to the new one.
	Delta map[string]any `json:"-"`
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// DiffListings compares two results of Listing.
func DiffListings(old, new map[string]any) (Changes, error) {
	delta, err := structdiff.Diff(old, new)
	if err != nil {
		return Changes{}, err
	}

	patch, _ := any(delta).(map[string]any)
	c := Changes{Delta: patch}
	for path := range new {
		if _, had := old[path]; !had {
			c.Added = append(c.Added, path)
		}
	}
	for path := range old {
		if _, has := new[path]; !has {
			c.Removed = append(c.Removed, path)
		}
	}
	for path := range patch {
		_, had := old[path]
		_, has := new[path]
		if had && has {
			c.Changed = append(c.Changed, path)
		}
	}
	sort.Strings(c.Added)
	sort.Strings(c.Removed)
	sort.Strings(c.Changed)
	return c, nil
}
