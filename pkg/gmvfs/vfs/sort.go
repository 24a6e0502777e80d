package vfs

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// sortNodes orders folders before resources and each group by case-sensitive
// locale-aware name order. Digits compare as characters, so "Level 10" comes
// before "Level 2". Ties fall back to byte order of the name and then of the
// path so the result does not depend on the order the server listed entries in.
func sortNodes(nodes []*Node) {
	// A Collator is not safe for concurrent use.
	c := collate.New(language.English)

	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if (a.Kind == KindFolder) != (b.Kind == KindFolder) {
			return a.Kind == KindFolder
		}
		if r := c.CompareString(a.Name, b.Name); r != 0 {
			return r < 0
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Path() < b.Path()
	})
}
