package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsarna/gmvfs/pkg/gmvfs/projecttest"
	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
)

func newProject(t *testing.T) (*projecttest.Server, *vfs.Tree) {
	t.Helper()
	srv := projecttest.NewServer("Game")
	t.Cleanup(func() { _ = srv.Close() })

	scripts := srv.AddFolder(srv.Root(), "Scripts")
	srv.AddResource(scripts, protocol.ResourceScript, "scr_move")
	srv.AddResource(srv.Root(), protocol.ResourceObject, "oPlayer", "Create_0", "Step_0")

	return srv, vfs.NewTree(protocol.NewClient(srv, nil), srv.Metadata(), nil)
}

func TestRecords(t *testing.T) {
	_, tree := newProject(t)
	ctx := context.Background()

	t.Run("full depth", func(t *testing.T) {
		records, err := Records(ctx, tree, nil, 0)
		require.NoError(t, err)
		require.Len(t, records, 2)

		scripts := records[0]
		assert.Equal(t, "folder", scripts.Kind)
		assert.Equal(t, "Scripts", scripts.Label)
		require.Len(t, scripts.Children, 1)
		assert.Equal(t, "scr_move.gml", scripts.Children[0].Label)
		assert.Equal(t, "Script", scripts.Children[0].Resource)

		player := records[1]
		assert.Equal(t, "resource", player.Kind)
		require.Len(t, player.Children, 2)
		assert.Equal(t, "event", player.Children[0].Kind)
		assert.Equal(t, "Create_0", player.Children[0].Event)
		assert.Equal(t, "Step.gml", player.Children[1].Label)
	})

	t.Run("depth one", func(t *testing.T) {
		records, err := Records(ctx, tree, nil, 1)
		require.NoError(t, err)
		for _, r := range records {
			assert.Empty(t, r.Children)
		}
	})

	t.Run("listing is keyed by path", func(t *testing.T) {
		records, err := Records(ctx, tree, nil, 0)
		require.NoError(t, err)

		listing := Listing(records)
		assert.Len(t, listing, 5)
		entry, ok := listing["objects/oPlayer/oPlayer.yy/Step_0"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Step.gml", entry["label"])
		assert.NotContains(t, entry, "resource")
	})
}

func TestJqQuery(t *testing.T) {
	_, tree := newProject(t)
	ctx := context.Background()
	records, err := Records(ctx, tree, nil, 0)
	require.NoError(t, err)

	t.Run("select resources by kind", func(t *testing.T) {
		q, err := NewJqQuery(`[.. | objects | select(.resource == "Script") | .name]`)
		require.NoError(t, err)

		results, err := q.Run(ctx, records, "Game")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, []any{"scr_move"}, results[0])
	})

	t.Run("multiple results and variables", func(t *testing.T) {
		q, err := NewJqQuery(`.[] | "\($project):\(.label)"`)
		require.NoError(t, err)
		assert.Equal(t, `.[] | "\($project):\(.label)"`, q.String())

		results, err := q.Run(ctx, records, "Game")
		require.NoError(t, err)
		assert.Equal(t, []any{"Game:Scripts", "Game:oPlayer"}, results)
	})

	t.Run("plain input", func(t *testing.T) {
		q, err := NewJqQuery(`.a + 1`)
		require.NoError(t, err)

		results, err := q.Run(ctx, map[string]any{"a": 1}, "")
		require.NoError(t, err)
		assert.Equal(t, []any{2}, results)
	})

	t.Run("empty output", func(t *testing.T) {
		q, err := NewJqQuery(`empty`)
		require.NoError(t, err)

		results, err := q.Run(ctx, records, "Game")
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("runtime error", func(t *testing.T) {
		q, err := NewJqQuery(`.[] | .name + 1`)
		require.NoError(t, err)

		_, err = q.Run(ctx, records, "Game")
		assert.Error(t, err)
	})

	t.Run("parse error", func(t *testing.T) {
		_, err := NewJqQuery(`.[`)
		assert.Error(t, err)
	})

	t.Run("unknown variable", func(t *testing.T) {
		_, err := NewJqQuery(`$nope`)
		assert.Error(t, err)
	})
}

func TestDiffListings(t *testing.T) {
	srv, tree := newProject(t)
	ctx := context.Background()

	before, err := Records(ctx, tree, nil, 0)
	require.NoError(t, err)

	client := protocol.NewClient(srv, nil)
	require.NoError(t, client.DeleteEvent(ctx, "oPlayer", "Step_0"))
	require.NoError(t, client.CreateEvent(ctx, "oPlayer", "Draw_0"))
	require.NoError(t, client.RenameFolder(ctx, protocol.ViewPath{Name: "Scripts", Path: "folders/Scripts.yy"}, "Code"))
	tree.Refresh(ctx, nil)

	after, err := Records(ctx, tree, nil, 0)
	require.NoError(t, err)

	changes, err := DiffListings(Listing(before), Listing(after))
	require.NoError(t, err)

	assert.False(t, changes.Empty())
	assert.Equal(t, []string{"folders/Code.yy", "objects/oPlayer/oPlayer.yy/Draw_0"}, changes.Added)
	assert.Equal(t, []string{"folders/Scripts.yy", "objects/oPlayer/oPlayer.yy/Step_0"}, changes.Removed)
	assert.Empty(t, changes.Changed)

	same, err := DiffListings(Listing(after), Listing(after))
	require.NoError(t, err)
	assert.True(t, same.Empty())
}

func TestDiffListingsChanged(t *testing.T) {
	old := map[string]any{"a": map[string]any{"label": "x"}, "b": map[string]any{"label": "y"}}
	new := map[string]any{"a": map[string]any{"label": "z"}, "b": map[string]any{"label": "y"}}

	changes, err := DiffListings(old, new)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, changes.Changed)
	assert.Empty(t, changes.Added)
	assert.Empty(t, changes.Removed)
	assert.Contains(t, changes.Delta, "a")
}
