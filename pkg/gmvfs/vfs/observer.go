package vfs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/amir-yaghoubi/mqttpattern"
	"go.uber.org/zap"
)

// Topic prefixes of change notifications.
const (
	TopicPrefix = "vfs/changed/"
	TopicRoot   = TopicPrefix + "root"
)

// TopicFor returns the change topic of n; nil means the root.
func TopicFor(n *Node) string {
	if n == nil {
		return TopicRoot
	}
	return TopicPrefix + n.Path()
}

// Observer is told when a part of the tree has been invalidated. Node is
// the refreshed node, nil for the root. Fields holds the values of named
// wildcards in the subscription pattern, e.g. "vfs/changed/folders/+name".
type Observer interface {
	OnChanged(ctx context.Context, topic string, node *Node, fields map[string]string) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, topic string, node *Node, fields map[string]string) error

func (f ObserverFunc) OnChanged(ctx context.Context, topic string, node *Node, fields map[string]string) error {
	return f(ctx, topic, node, fields)
}

type matcher func(topic string) (bool, map[string]string)

func makeMatcher(pattern string) matcher {
	if !strings.ContainsAny(pattern, "+#") {
		return func(topic string) (bool, map[string]string) {
			return topic == pattern, nil
		}
	}

	if mqttpattern.HasExtractions(pattern) {
		return func(topic string) (bool, map[string]string) {
			if mqttpattern.Matches(pattern, topic) {
				return true, mqttpattern.Extract(pattern, topic)
			}
			return false, nil
		}
	}

	return func(topic string) (bool, map[string]string) {
		return mqttpattern.Matches(pattern, topic), nil
	}
}

type subscription struct {
	id       uint64
	pattern  string
	match    matcher
	observer Observer
}

type observers struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	logger *zap.Logger
}

func (o *observers) subscribe(pattern string, observer Observer) (func(), error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	if observer == nil {
		return nil, fmt.Errorf("observer is required")
	}
	if i := strings.Index(pattern, "#"); i >= 0 && i < strings.LastIndex(pattern, "/") {
		return nil, fmt.Errorf("invalid pattern %q: # must be the last level", pattern)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscription{id: id, pattern: pattern, match: makeMatcher(pattern), observer: observer})

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, s := range o.subs {
			if s.id == id {
				o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
				return
			}
		}
	}, nil
}

// notify delivers topic to every matching observer in subscription order.
// Observer errors are logged; they never affect the tree.
func (o *observers) notify(ctx context.Context, topic string, node *Node) {
	o.mu.RLock()
	subs := append([]subscription(nil), o.subs...)
	o.mu.RUnlock()

	for _, s := range subs {
		ok, fields := s.match(topic)
		if !ok {
			continue
		}
		if err := s.observer.OnChanged(ctx, topic, node, fields); err != nil {
			o.logger.Warn("Observer error",
				zap.String("topic", topic),
				zap.String("pattern", s.pattern),
				zap.Error(err))
		}
	}
}
