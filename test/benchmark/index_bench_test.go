// Package benchmark contains Go benchmarks for the inverted index, document
// registry and search pipeline, measuring throughput and allocation behaviour.
package benchmark

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/store/document"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/internal/store/index"
)

var vocabulary = []string{
	"distortion", "adaptation", "retrieval", "index", "posting",
	"session", "document", "frequency", "shard", "query",
}

func docFrequencies(i int) index.Frequencies {
	freqs := make(index.Frequencies, 4)
	for j := 0; j < 4; j++ {
		freqs[vocabulary[(i+j)%len(vocabulary)]] = int64(j + 1)
	}
	return freqs
}

// BenchmarkAddPostings measures per-document insert throughput into the
// striped inverted index.
func BenchmarkAddPostings(b *testing.B) {
	for _, shards := range []int{1, 16, 64} {
		b.Run(fmt.Sprintf("shards_%d", shards), func(b *testing.B) {
			idx := index.New(shards)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				idx.AddPostings(1, int64(i), docFrequencies(i))
			}
		})
	}
}

// BenchmarkAddPostingsParallel measures contention between concurrent
// submitters.
func BenchmarkAddPostingsParallel(b *testing.B) {
	for _, shards := range []int{1, 64} {
		b.Run(fmt.Sprintf("shards_%d", shards), func(b *testing.B) {
			idx := index.New(shards)
			b.ReportAllocs()
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					idx.AddPostings(1, int64(i), docFrequencies(i))
					i++
				}
			})
		})
	}
}

// BenchmarkPostingsFor measures single-term snapshot latency over 10 000
// documents.
func BenchmarkPostingsFor(b *testing.B) {
	idx := index.New(0)
	for i := 0; i < 10000; i++ {
		idx.AddPostings(1, int64(i), docFrequencies(i))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.PostingsFor("distortion")
	}
}

// BenchmarkAssignOrGet measures document id assignment for new and repeated
// paths.
func BenchmarkAssignOrGet(b *testing.B) {
	b.Run("new", func(b *testing.B) {
		reg := document.NewRegistry()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			reg.AssignOrGet(fmt.Sprintf("/data/doc-%d.txt", i), 1)
		}
	})
	b.Run("existing", func(b *testing.B) {
		reg := document.NewRegistry()
		for i := 0; i < 1000; i++ {
			reg.AssignOrGet(fmt.Sprintf("/data/doc-%d.txt", i), 1)
		}
		paths := make([]string, 1000)
		for i := range paths {
			paths[i] = fmt.Sprintf("/data/doc-%d.txt", i)
		}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			reg.AssignOrGet(paths[i%len(paths)], 2)
		}
	})
}
