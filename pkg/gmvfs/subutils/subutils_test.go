package subutils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tsarna/gmvfs/pkg/gmvfs/projecttest"
	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
)

type recordingObserver struct {
	mu     sync.Mutex
	topics []string
	fields []map[string]string
	delay  time.Duration
	err    error
}

func (r *recordingObserver) OnChanged(ctx context.Context, topic string, node *vfs.Node, fields map[string]string) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.fields = append(r.fields, fields)
	return r.err
}

func (r *recordingObserver) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

func TestLoggingObserver(t *testing.T) {
	ctx := context.Background()

	t.Run("standalone", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		obs := NewLoggingObserver(nil, zap.New(core), zap.InfoLevel)
		assert.Equal(t, "LoggingObserver", obs.name)

		require.NoError(t, obs.OnChanged(ctx, vfs.TopicRoot, nil, nil))

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.Equal(t, zap.InfoLevel, entries[0].Level)
		fields := entries[0].ContextMap()
		assert.Equal(t, "root", fields["node"])
		assert.Equal(t, vfs.TopicRoot, fields["topic"])
		assert.Equal(t, false, fields["hasWrapped"])
	})

	t.Run("wraps", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		inner := &recordingObserver{err: errors.New("boom")}
		obs := NewNamedLoggingObserver(inner, zap.New(core), zap.DebugLevel, "printer")

		node := &vfs.Node{Kind: vfs.KindFolder, Name: "Sprites", ViewPath: protocol.ViewPath{Name: "Sprites", Path: "folders/Sprites.yy"}}
		err := obs.OnChanged(ctx, vfs.TopicFor(node), node, map[string]string{"name": "Sprites"})
		assert.EqualError(t, err, "boom")
		assert.Equal(t, []string{"vfs/changed/folders/Sprites.yy"}, inner.seen())

		fields := logs.All()[0].ContextMap()
		assert.Equal(t, "printer", fields["observer"])
		assert.Equal(t, "Sprites", fields["node"])
	})

	t.Run("nil logger", func(t *testing.T) {
		obs := NewLoggingObserver(nil, nil, zap.InfoLevel)
		assert.NoError(t, obs.OnChanged(ctx, vfs.TopicRoot, nil, nil))
	})
}

func TestAsyncObserver(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		obs := NewAsyncObserver(&recordingObserver{}, 0, nil)
		defer obs.Close()
		assert.Equal(t, 100, obs.QueueCapacity())
		assert.Equal(t, 0, obs.QueueSize())
		assert.False(t, obs.IsClosed())
	})

	t.Run("delivers in order", func(t *testing.T) {
		inner := &recordingObserver{}
		obs := NewAsyncObserver(inner, 10, nil).Start()

		for _, topic := range []string{"a", "b", "c"} {
			require.NoError(t, obs.OnChanged(ctx, topic, nil, nil))
		}
		require.NoError(t, obs.Close())
		assert.Equal(t, []string{"a", "b", "c"}, inner.seen())
	})

	t.Run("queue full", func(t *testing.T) {
		inner := &recordingObserver{}
		obs := NewAsyncObserver(inner, 1, nil)

		require.NoError(t, obs.OnChanged(ctx, "a", nil, nil))
		assert.ErrorIs(t, obs.OnChanged(ctx, "b", nil, nil), ErrQueueFull)

		obs.Start()
		require.NoError(t, obs.Close())
		assert.Equal(t, []string{"a"}, inner.seen())
	})

	t.Run("closed", func(t *testing.T) {
		obs := NewAsyncObserver(&recordingObserver{}, 1, nil).Start()
		require.NoError(t, obs.Close())
		require.NoError(t, obs.Close())
		assert.True(t, obs.IsClosed())
		assert.ErrorIs(t, obs.OnChanged(ctx, "a", nil, nil), ErrObserverClosed)
	})

	t.Run("errors are logged", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		obs := NewAsyncObserver(&recordingObserver{err: errors.New("boom")}, 1, zap.New(core)).Start()
		require.NoError(t, obs.OnChanged(ctx, "a", nil, nil))
		require.NoError(t, obs.Close())
		assert.Equal(t, 1, logs.FilterMessage("Queued observer failed").Len())
	})

	t.Run("does not block the tree", func(t *testing.T) {
		srv := projecttest.NewServer("Game")
		defer srv.Close()
		srv.AddFolder(srv.Root(), "Sprites")
		tree := vfs.NewTree(protocol.NewClient(srv, nil), srv.Metadata(), nil)

		inner := &recordingObserver{delay: 50 * time.Millisecond}
		obs := NewAsyncObserver(inner, 10, nil).Start()
		defer obs.Close()

		unsubscribe, err := tree.Subscribe(vfs.TopicPrefix+"#", obs)
		require.NoError(t, err)
		defer unsubscribe()

		start := time.Now()
		tree.Refresh(ctx, nil)
		assert.Less(t, time.Since(start), 50*time.Millisecond)

		assert.Eventually(t, func() bool { return len(inner.seen()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{vfs.TopicRoot}, inner.seen())
	})
}

func TestFilteringObserver(t *testing.T) {
	ctx := context.Background()
	folder := &vfs.Node{Kind: vfs.KindFolder, Name: "Sprites", ViewPath: protocol.ViewPath{Name: "Sprites", Path: "folders/Sprites.yy"}}
	object := &vfs.Node{
		Kind:           vfs.KindResource,
		Name:           "oPlayer",
		Resource:       protocol.ResourceObject,
		FilesystemPath: protocol.FilesystemPath{Name: "oPlayer", Path: "objects/oPlayer/oPlayer.yy"},
	}

	send := func(obs vfs.Observer, nodes ...*vfs.Node) {
		for _, n := range nodes {
			require.NoError(t, obs.OnChanged(ctx, vfs.TopicFor(n), n, nil))
		}
	}

	t.Run("no filters", func(t *testing.T) {
		inner := &recordingObserver{}
		send(NewFilteringObserver(inner), nil, folder, object)
		assert.Len(t, inner.seen(), 3)
	})

	t.Run("drop pattern", func(t *testing.T) {
		inner := &recordingObserver{}
		send(NewFilteringObserver(inner, DropTopicPattern("vfs/changed/objects/#")), nil, folder, object)
		assert.Equal(t, []string{vfs.TopicRoot, "vfs/changed/folders/Sprites.yy"}, inner.seen())
	})

	t.Run("drop prefix", func(t *testing.T) {
		inner := &recordingObserver{}
		send(NewFilteringObserver(inner, DropTopicPrefix("vfs/changed/folders")), nil, folder, object)
		assert.Equal(t, []string{vfs.TopicRoot, "vfs/changed/objects/oPlayer/oPlayer.yy"}, inner.seen())
	})

	t.Run("only kinds", func(t *testing.T) {
		inner := &recordingObserver{}
		send(NewFilteringObserver(inner, OnlyKinds(vfs.KindResource)), nil, folder, object)
		assert.Equal(t, []string{"vfs/changed/objects/oPlayer/oPlayer.yy"}, inner.seen())
	})

	t.Run("rate limit", func(t *testing.T) {
		inner := &recordingObserver{}
		obs := NewFilteringObserver(inner, RateLimitByTopic(time.Hour))
		send(obs, folder, folder, object, folder)
		assert.Len(t, inner.seen(), 2)
	})

	t.Run("filters chain", func(t *testing.T) {
		inner := &recordingObserver{}
		obs := NewFilteringObserver(inner, OnlyKinds(vfs.KindFolder), DropTopicPrefix(vfs.TopicRoot))
		send(obs, nil, folder, object)
		assert.Equal(t, []string{"vfs/changed/folders/Sprites.yy"}, inner.seen())
	})
}
