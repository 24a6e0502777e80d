package benchmarks

import (
	"context"
	"fmt"
	"io"
	"testing"

	"go.uber.org/zap"

	"github.com/tsarna/gmvfs/pkg/gmvfs/o11y"
	"github.com/tsarna/gmvfs/pkg/gmvfs/otel"
	"github.com/tsarna/gmvfs/pkg/gmvfs/projecttest"
	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
	"github.com/tsarna/gmvfs/pkg/gmvfs/session"
	"github.com/tsarna/gmvfs/pkg/gmvfs/vfs"
)

func newServer(b *testing.B, resources int) *projecttest.Server {
	b.Helper()
	srv := projecttest.NewServer("Benchmark")
	b.Cleanup(func() { _ = srv.Close() })

	folder := srv.AddFolder(srv.Root(), "Scripts")
	for i := 0; i < resources; i++ {
		srv.AddResource(folder, protocol.ResourceScript, fmt.Sprintf("scr_%d", i))
	}
	return srv
}

func benchmarkDispatch(b *testing.B, client *protocol.Client) {
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := client.CanUseResourceName(ctx, "scr_new"); err != nil {
			b.Fatalf("CanUseResourceName() returned error: %v", err)
		}
	}
}

func BenchmarkDispatchNoObservability(b *testing.B) {
	srv := newServer(b, 0)
	benchmarkDispatch(b, protocol.NewClient(srv, zap.NewNop()))
}

func BenchmarkDispatchWithMemoryMetrics(b *testing.B) {
	srv := newServer(b, 0)
	metrics := o11y.NewMemoryProvider("benchmark")
	client := protocol.NewClient(srv, zap.NewNop()).WithObservability(o11y.ObservabilityConfig{
		MetricsProvider: metrics,
		ServiceName:     "benchmark",
		ServiceVersion:  "v1.0.0",
	})
	benchmarkDispatch(b, client)
}

func BenchmarkDispatchWithOpenTelemetry(b *testing.B) {
	srv := newServer(b, 0)
	provider := otel.NewProvider("benchmark", "v1.0.0")
	client := protocol.NewClient(srv, zap.NewNop()).WithObservability(provider.Config("benchmark", "v1.0.0"))
	benchmarkDispatch(b, client)
}

// BenchmarkSessionRoundTrip measures a request through the session's
// queue and the line protocol, with the server on the far end of a pipe.
func BenchmarkSessionRoundTrip(b *testing.B) {
	srv := newServer(b, 0)

	fromClient, toServer := io.Pipe()
	fromServer, toClient := io.Pipe()
	go func() {
		_ = srv.ServeLines(fromClient, toClient)
		toClient.Close()
	}()

	s, err := session.NewSession().
		WithLogger(zap.NewNop()).
		Start(context.Background(), session.StreamConnector{Reader: fromServer, Writer: toServer})
	if err != nil {
		b.Fatalf("Start() returned error: %v", err)
	}
	defer s.Shutdown(context.Background())

	benchmarkDispatch(b, protocol.NewClient(s, zap.NewNop()))
}

func BenchmarkTreeReload(b *testing.B) {
	for _, size := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("%d resources", size), func(b *testing.B) {
			srv := newServer(b, size)
			tree := vfs.NewTree(protocol.NewClient(srv, zap.NewNop()), srv.Metadata(), zap.NewNop())
			ctx := context.Background()

			root, err := tree.GetChildren(ctx, nil)
			if err != nil || len(root) != 1 {
				b.Fatalf("GetChildren() = %d nodes, %v", len(root), err)
			}

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				tree.Refresh(ctx, nil)
				if _, err := tree.GetChildren(ctx, root[0]); err != nil {
					b.Fatalf("GetChildren() returned error: %v", err)
				}
			}
		})
	}
}
