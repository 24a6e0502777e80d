package subutils

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/amir-yaghoubi/mqttpattern"
	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
)

// Filter decides whether a change notification is passed on.
type Filter func(topic string, node *vfs.Node) bool

// DropTopicPattern drops notifications whose topic matches an MQTT-style
// pattern such as "vfs/changed/objects/#".
func DropTopicPattern(pattern string) Filter {
	return func(topic string, _ *vfs.Node) bool {
		return !mqttpattern.Matches(pattern, topic)
	}
}

// DropTopicPrefix drops notifications whose topic starts with prefix.
func DropTopicPrefix(prefix string) Filter {
	return func(topic string, _ *vfs.Node) bool {
		return !strings.HasPrefix(topic, prefix)
	}
}

// OnlyKinds keeps notifications for nodes of the given kinds. Root
// notifications count as folders.
func OnlyKinds(kinds ...vfs.NodeKind) Filter {
	return func(_ string, node *vfs.Node) bool {
		kind := vfs.KindFolder
		if node != nil {
			kind = node.Kind
		}
		for _, k := range kinds {
			if k == kind {
				return true
			}
		}
		return false
	}
}

// RateLimitByTopic passes at most one notification per topic within
// minInterval.
func RateLimitByTopic(minInterval time.Duration) Filter {
	var mu sync.Mutex
	lastSent := make(map[string]time.Time)

	return func(topic string, _ *vfs.Node) bool {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if last, ok := lastSent[topic]; ok && now.Sub(last) < minInterval {
			return false
		}
		lastSent[topic] = now
		return true
	}
}

// FilteringObserver forwards a notification only when every filter
// accepts it. Filters run in order and stop at the first rejection.
type FilteringObserver struct {
	wrapped vfs.Observer
	filters []Filter
}

func NewFilteringObserver(wrapped vfs.Observer, filters ...Filter) *FilteringObserver {
	return &FilteringObserver{wrapped: wrapped, filters: filters}
}

func (f *FilteringObserver) OnChanged(ctx context.Context, topic string, node *vfs.Node, fields map[string]string) error {
	for _, keep := range f.filters {
		if !keep(topic, node) {
			return nil
		}
	}
	return f.wrapped.OnChanged(ctx, topic, node, fields)
}
