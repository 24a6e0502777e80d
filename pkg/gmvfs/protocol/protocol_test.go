package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsarna/gmvfs/pkg/gmvfs/o11y"
)

// scriptedTransport answers each round trip with the next canned response
// and records what was sent.
type scriptedTransport struct {
	responses [][]byte
	errs      []error
	sent      [][]byte
}

func (s *scriptedTransport) RoundTrip(_ context.Context, req []byte) ([]byte, error) {
	s.sent = append(s.sent, req)
	i := len(s.sent) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.responses) {
		return nil, io.EOF
	}
	return s.responses[i], nil
}

func success(t *testing.T, payload any) []byte {
	data, err := EncodeSuccess(payload)
	require.NoError(t, err)
	return data
}

func failure(t *testing.T, detail ErrorDetail) []byte {
	data, err := EncodeFailure(detail)
	require.NoError(t, err)
	return data
}

func TestEncode(t *testing.T) {
	t.Run("nested command carries both discriminants", func(t *testing.T) {
		data, err := Encode(CreateFolderVfs{Folder: ViewPath{Name: "Sprites", Path: "folders/Sprites.yy"}, Name: "Enemies"})
		require.NoError(t, err)

		var wire map[string]any
		require.NoError(t, json.Unmarshal(data, &wire))
		assert.Equal(t, "Vfs", wire["type"])

		sub := wire["subCommand"].(map[string]any)
		assert.Equal(t, "CreateFolderVfs", sub["type"])
		assert.Equal(t, "Enemies", sub["name"])
		assert.Equal(t, "folders/Sprites.yy", sub["folder"].(map[string]any)["path"])
	})

	t.Run("flat commands have no subCommand", func(t *testing.T) {
		for _, cmd := range []Descriptor{SerializationCheckpoint{}, GetProjectMetadata{}, Shutdown{}} {
			data, err := Encode(cmd)
			require.NoError(t, err)
			assert.JSONEq(t, `{"type":"`+string(cmd.Category())+`"}`, string(data))
		}
	})

	t.Run("decode recovers the kind", func(t *testing.T) {
		cases := []Descriptor{
			GetFullVfs{},
			GetFolderVfs{Folder: ViewPath{Name: "a", Path: "folders/a.yy"}},
			RemoveFolderVfs{Recursive: true},
			RenameResource{Resource: ResourceScript, Name: "a", NewName: "b"},
			CanUseResourceName{Name: "x"},
			DeleteEvent{ObjectName: "o", EventFileName: "Step_0"},
			SerializationCheckpoint{},
			Shutdown{},
		}
		for _, cmd := range cases {
			data, err := Encode(cmd)
			require.NoError(t, err)

			env, kind, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, cmd.Category(), env.Type)
			assert.Equal(t, cmd.Kind(), kind)
		}
	})

	t.Run("decode rejects incomplete commands", func(t *testing.T) {
		_, _, err := Decode([]byte(`{"type":"Vfs"}`))
		assert.Error(t, err)

		_, _, err = Decode([]byte(`{"type":"Vfs","subCommand":{}}`))
		assert.Error(t, err)

		_, _, err = Decode([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	root := ViewPath{Name: "folders", Path: "folders"}

	t.Run("success decodes the bound result type", func(t *testing.T) {
		graph := FolderGraph{
			Name:     "folders",
			ViewPath: root,
			Folders:  []ViewPath{{Name: "Sprites", Path: "folders/Sprites.yy"}},
			Files: []FileEntry{{
				FilesystemPath: FilesystemPath{Name: "scr_a", Path: "scripts/scr_a/scr_a.yy"},
				Descriptor:     ResourceDescriptor{Resource: ResourceScript, ParentLocation: "folders"},
			}},
		}
		tr := &scriptedTransport{responses: [][]byte{success(t, graph)}}

		got, err := Send[FolderGraph](ctx, tr, GetFullVfs{})
		require.NoError(t, err)
		assert.Equal(t, graph, got)
		require.Len(t, tr.sent, 1)
	})

	t.Run("empty results ignore the payload", func(t *testing.T) {
		tr := &scriptedTransport{responses: [][]byte{[]byte(`{"success":true}`)}}

		_, err := Send[Empty](ctx, tr, SerializationCheckpoint{})
		assert.NoError(t, err)
	})

	t.Run("failure becomes a server error", func(t *testing.T) {
		tr := &scriptedTransport{responses: [][]byte{failure(t, ErrorDetail{Kind: ErrorKindNameTaken, Name: "New Folder"})}}

		_, err := Send[CreatedFolder](ctx, tr, CreateFolderVfs{Folder: root, Name: "New Folder"})
		require.Error(t, err)

		var se *ServerError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, KindCreateFolder, se.Command)
		assert.True(t, IsErrorKind(err, ErrorKindNameTaken))
		assert.False(t, IsTransport(err))
		assert.Contains(t, err.Error(), `"New Folder" is already taken`)
	})

	t.Run("failure without detail is internal", func(t *testing.T) {
		tr := &scriptedTransport{responses: [][]byte{[]byte(`{"success":false}`)}}

		_, err := Send[Empty](ctx, tr, RenameFolderVfs{Folder: root, NewName: "x"})
		assert.True(t, IsErrorKind(err, ErrorKindInternal))
	})

	t.Run("transport failures are not server errors", func(t *testing.T) {
		tr := &scriptedTransport{errs: []error{io.ErrUnexpectedEOF}}

		_, err := Send[Empty](ctx, tr, SerializationCheckpoint{})
		require.Error(t, err)
		assert.True(t, IsTransport(err))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, KindSerialize, te.Command)
	})

	t.Run("context errors pass through", func(t *testing.T) {
		tr := &scriptedTransport{errs: []error{context.Canceled}}

		_, err := Send[Empty](ctx, tr, SerializationCheckpoint{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsTransport(err))
	})

	t.Run("malformed responses are transport errors", func(t *testing.T) {
		cases := map[string][]byte{
			"not json":        []byte(`<html>`),
			"missing payload": []byte(`{"success":true}`),
			"wrong shape":     []byte(`{"success":true,"payload":[1,2]}`),
		}
		for name, resp := range cases {
			t.Run(name, func(t *testing.T) {
				tr := &scriptedTransport{responses: [][]byte{resp}}
				_, err := Send[FolderGraph](ctx, tr, GetFullVfs{})
				assert.True(t, IsTransport(err))
				assert.ErrorIs(t, err, ErrMalformedResponse)
			})
		}
	})
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("typed methods unwrap results", func(t *testing.T) {
		tr := &scriptedTransport{responses: [][]byte{
			success(t, NameValidity{Valid: true}),
			success(t, RequestedPath{Path: "/p/scripts/scr_a/scr_a.gml"}),
			success(t, EventNames{Names: []string{"Create", "Step"}}),
			success(t, CreatedFolder{Folder: ViewPath{Name: "New Folder", Path: "folders/New Folder.yy"}}),
		}}
		c := NewClient(tr, nil)

		ok, err := c.CanUseResourceName(ctx, "scr_a")
		require.NoError(t, err)
		assert.True(t, ok)

		path, err := c.ScriptGmlPath(ctx, "scr_a")
		require.NoError(t, err)
		assert.Equal(t, "/p/scripts/scr_a/scr_a.gml", path)

		names, err := c.PrettyEventNames(ctx, []string{"Create_0", "Step_0"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Create", "Step"}, names)

		vp, err := c.CreateFolder(ctx, ViewPath{Name: "folders", Path: "folders"}, "New Folder")
		require.NoError(t, err)
		assert.Equal(t, "New Folder", vp.Name)

		require.Len(t, tr.sent, 4)
		_, kind, err := Decode(tr.sent[2])
		require.NoError(t, err)
		assert.Equal(t, KindPrettyEventNames, kind)
	})

	t.Run("dispatches are counted", func(t *testing.T) {
		tr := &scriptedTransport{
			responses: [][]byte{
				[]byte(`{"success":true}`),
				failure(t, ErrorDetail{Kind: ErrorKindResourceNotFound, Name: "nope"}),
			},
		}
		metrics := o11y.NewMemoryProvider("test")
		c := NewClient(tr, nil).WithObservability(o11y.ObservabilityConfig{MetricsProvider: metrics})

		require.NoError(t, c.Checkpoint(ctx))
		assert.Error(t, c.RemoveResource(ctx, ResourceScript, "nope"))

		assert.Equal(t, int64(1), metrics.CounterValue(o11y.MetricCommandsSent, o11y.Label{Key: "command", Value: "Serialize"}))
		assert.Equal(t, int64(1), metrics.CounterValue(o11y.MetricCommandsSent, o11y.Label{Key: "command", Value: "RemoveResource"}))
		assert.Equal(t, int64(1), metrics.CounterValue(o11y.MetricCommandErrors,
			o11y.Label{Key: "command", Value: "RemoveResource"}, o11y.Label{Key: "class", Value: "server"}))
		assert.Len(t, metrics.Snapshot().Histograms, 2)
	})
}
