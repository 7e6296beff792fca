package inproc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

func TestWorkersHandleEveryTask(t *testing.T) {
	q := New(nil, WithWorkers(3), WithQueueSize(16))
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	wg.Add(5)
	done := make(chan error, 1)
	go func() {
		done <- q.SubscribeDocumentUploaded(ctx, func(_ context.Context, id string) error {
			mu.Lock()
			seen[id]++
			mu.Unlock()
			wg.Done()
			return nil
		})
	}()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if err := q.PublishDocumentUploaded(context.Background(), id); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	wg.Wait()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("subscribe returned %v", err)
	}

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if seen[id] != 1 {
			t.Fatalf("task %s handled %d times", id, seen[id])
		}
	}
}

func TestPublishAfterShutdownIsTemporary(t *testing.T) {
	q := New(nil, WithWorkers(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.SubscribeDocumentUploaded(ctx, func(context.Context, string) error { return nil }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	err := q.PublishDocumentUploaded(context.Background(), "late")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestPublishFullQueueRespectsContext(t *testing.T) {
	q := New(nil, WithQueueSize(1))
	if err := q.PublishDocumentUploaded(context.Background(), "first"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.PublishDocumentUploaded(ctx, "second"); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary on full queue, got %v", err)
	}
}

func TestShutdownDrainsBufferedTasks(t *testing.T) {
	q := New(nil, WithWorkers(1), WithQueueSize(4))
	for _, id := range []string{"x", "y"} {
		if err := q.PublishDocumentUploaded(context.Background(), id); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var mu sync.Mutex
	handled := 0
	err := q.SubscribeDocumentUploaded(ctx, func(taskCtx context.Context, _ string) error {
		if taskCtx.Err() != nil {
			t.Errorf("drained task got a cancelled context")
		}
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if handled != 2 {
		t.Fatalf("expected 2 drained tasks, got %d", handled)
	}
}

func TestDeadLettersAreRecorded(t *testing.T) {
	q := New(nil)
	_ = q.PublishDeadLetter(context.Background(), "doc-1", "boom")

	got := q.DeadLetters()
	if len(got) != 1 || got[0].DocumentID != "doc-1" || got[0].Reason != "boom" {
		t.Fatalf("unexpected dead letters %+v", got)
	}
}

func TestCloseRejectsPublish(t *testing.T) {
	q := New(nil)
	q.Close()

	err := q.PublishDocumentUploaded(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary after Close, got %v", err)
	}
}
