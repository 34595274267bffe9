package rag

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/quarrylabs/quarry/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fiveChunkDoc splits into exactly five chunks of ten characters with
// chunkSize=10, overlap=0: "aaaaaaaaaa" through "eeeeeeeeee".
func fiveChunkDoc() Document {
	return Document{
		ID:     "doc-1",
		Source: "doc.txt",
		Text: strings.Repeat("a", 10) + strings.Repeat("b", 10) +
			strings.Repeat("c", 10) + strings.Repeat("d", 10) + strings.Repeat("e", 10),
	}
}

func TestIngestPartialFailure(t *testing.T) {
	embedder := &fakeEmbedder{
		embedFn: func(_ context.Context, text string) ([]float32, error) {
			switch text[0] {
			case 'b', 'd':
				return nil, fmt.Errorf("quota: %w", ErrEmbeddingUnavailable)
			}
			return []float32{1, 0, 0}, nil
		},
	}
	idx := newFakeIndex()
	p := NewPipeline(embedder, idx, log.NewNop())

	report, err := p.Ingest(context.Background(), fiveChunkDoc(), 10, 0)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if report.ChunksCreated != 3 {
		t.Errorf("ChunksCreated = %d, want 3", report.ChunksCreated)
	}
	if report.ChunksFailed != 2 {
		t.Errorf("ChunksFailed = %d, want 2", report.ChunksFailed)
	}
	wantFailed := []string{ChunkID("doc-1", 1), ChunkID("doc-1", 3)}
	if !reflect.DeepEqual(report.FailedIDs, wantFailed) {
		t.Errorf("FailedIDs = %v, want %v", report.FailedIDs, wantFailed)
	}

	// Only the successful chunks may reach the index, never zero-filled
	// placeholders for the failed ones.
	stored := idx.storedIDs()
	sort.Strings(stored)
	wantStored := []string{ChunkID("doc-1", 0), ChunkID("doc-1", 2), ChunkID("doc-1", 4)}
	if !reflect.DeepEqual(stored, wantStored) {
		t.Errorf("index holds %v, want %v", stored, wantStored)
	}
}

func TestIngestAllChunksFail(t *testing.T) {
	embedder := &fakeEmbedder{
		embedFn: func(context.Context, string) ([]float32, error) {
			return nil, fmt.Errorf("down: %w", ErrEmbeddingUnavailable)
		},
	}
	idx := newFakeIndex()
	p := NewPipeline(embedder, idx, log.NewNop())

	report, err := p.Ingest(context.Background(), fiveChunkDoc(), 10, 0)
	if !errors.Is(err, ErrIngestionFailed) {
		t.Fatalf("Ingest() error = %v, want ErrIngestionFailed", err)
	}
	if report.ChunksFailed != 5 {
		t.Errorf("ChunksFailed = %d, want 5", report.ChunksFailed)
	}
	if count, _ := idx.Count(context.Background()); count != 0 {
		t.Errorf("index holds %d chunks after total failure, want 0", count)
	}
}

func TestIngestReplacesPreviousChunks(t *testing.T) {
	idx := newFakeIndex()
	p := NewPipeline(&fakeEmbedder{}, idx, log.NewNop())
	ctx := context.Background()

	doc := Document{ID: "doc-1", Text: strings.Repeat("x", 30)}
	if _, err := p.Ingest(ctx, doc, 10, 0); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	if count, _ := idx.Count(ctx); count != 3 {
		t.Fatalf("index holds %d chunks, want 3", count)
	}

	// Shorter text replaces the old chunk set; the stale third chunk
	// must not survive.
	doc.Text = strings.Repeat("y", 20)
	report, err := p.Ingest(ctx, doc, 10, 0)
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if report.ChunksCreated != 2 {
		t.Errorf("ChunksCreated = %d, want 2", report.ChunksCreated)
	}

	stored := idx.storedIDs()
	sort.Strings(stored)
	want := []string{ChunkID("doc-1", 0), ChunkID("doc-1", 1)}
	if !reflect.DeepEqual(stored, want) {
		t.Errorf("index holds %v, want %v", stored, want)
	}
}

func TestIngestEmptyTextClearsDocument(t *testing.T) {
	idx := newFakeIndex()
	p := NewPipeline(&fakeEmbedder{}, idx, log.NewNop())
	ctx := context.Background()

	if _, err := p.Ingest(ctx, Document{ID: "doc-1", Text: "some text"}, 10, 0); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	report, err := p.Ingest(ctx, Document{ID: "doc-1", Text: ""}, 10, 0)
	if err != nil {
		t.Fatalf("Ingest() of empty text error = %v", err)
	}
	if report.ChunksCreated != 0 || report.ChunksFailed != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
	if count, _ := idx.Count(ctx); count != 0 {
		t.Errorf("index holds %d chunks, want 0 after empty re-ingestion", count)
	}
}

func TestIngestValidation(t *testing.T) {
	p := NewPipeline(&fakeEmbedder{}, newFakeIndex(), log.NewNop())
	ctx := context.Background()

	if _, err := p.Ingest(ctx, Document{ID: "  ", Text: "x"}, 10, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Ingest() with blank ID error = %v, want ErrInvalidParameter", err)
	}
	if _, err := p.Ingest(ctx, Document{ID: "doc-1", Text: "x"}, 0, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Ingest() with zero chunk size error = %v, want ErrInvalidParameter", err)
	}
}

func TestIngestOrderIndependentOfCompletion(t *testing.T) {
	// Later chunks finish first; the upserted batch must still be in
	// sequence order.
	embedder := &fakeEmbedder{
		embedFn: func(_ context.Context, text string) ([]float32, error) {
			switch text[0] {
			case 'a':
				time.Sleep(30 * time.Millisecond)
			case 'b':
				time.Sleep(15 * time.Millisecond)
			}
			return []float32{1, 0, 0}, nil
		},
	}
	idx := newFakeIndex()
	p := NewPipeline(embedder, idx, log.NewNop(), WithEmbedParallelism(5))

	if _, err := p.Ingest(context.Background(), fiveChunkDoc(), 10, 0); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if len(idx.upserts) != 1 {
		t.Fatalf("got %d upsert batches, want 1", len(idx.upserts))
	}
	for i, c := range idx.upserts[0] {
		if c.SequenceIndex != i {
			t.Errorf("upserted chunk %d has sequence index %d, want %d", i, c.SequenceIndex, i)
		}
	}
}

func TestIngestContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	embedder := &fakeEmbedder{
		embedFn: func(ctx context.Context, _ string) ([]float32, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	p := NewPipeline(embedder, newFakeIndex(), log.NewNop(), WithEmbedParallelism(1))

	_, err := p.Ingest(ctx, fiveChunkDoc(), 10, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Ingest() error = %v, want context.Canceled", err)
	}
}

func TestIngestIndexErrors(t *testing.T) {
	t.Run("delete fails", func(t *testing.T) {
		idx := newFakeIndex()
		idx.deleteErr = fmt.Errorf("down: %w", ErrIndexUnavailable)
		p := NewPipeline(&fakeEmbedder{}, idx, log.NewNop())

		_, err := p.Ingest(context.Background(), fiveChunkDoc(), 10, 0)
		if !errors.Is(err, ErrIndexUnavailable) {
			t.Errorf("Ingest() error = %v, want ErrIndexUnavailable", err)
		}
	})

	t.Run("upsert fails", func(t *testing.T) {
		idx := newFakeIndex()
		idx.upsertErr = fmt.Errorf("down: %w", ErrIndexUnavailable)
		p := NewPipeline(&fakeEmbedder{}, idx, log.NewNop())

		_, err := p.Ingest(context.Background(), fiveChunkDoc(), 10, 0)
		if !errors.Is(err, ErrIndexUnavailable) {
			t.Errorf("Ingest() error = %v, want ErrIndexUnavailable", err)
		}
	})
}
