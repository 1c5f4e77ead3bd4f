package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jesi-ai/account-service/internal/core/domain"
	"github.com/jesi-ai/account-service/internal/core/ports"
)

// fakeList mimics a Redis list: LPUSH at the head, RPUSH and BRPOP at the tail.
type fakeList struct {
	mu      sync.Mutex
	items   []string
	pushErr error
}

func (f *fakeList) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return redis.NewIntResult(0, f.pushErr)
	}
	for _, v := range values {
		f.items = append([]string{toString(v)}, f.items...)
	}
	return redis.NewIntResult(int64(len(f.items)), nil)
}

func (f *fakeList) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.items = append(f.items, toString(v))
	}
	return redis.NewIntResult(int64(len(f.items)), nil)
}

func (f *fakeList) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	f.mu.Lock()
	if n := len(f.items); n > 0 {
		v := f.items[n-1]
		f.items = f.items[:n-1]
		f.mu.Unlock()
		return redis.NewStringSliceResult([]string{keys[0], v}, nil)
	}
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return redis.NewStringSliceResult(nil, ctx.Err())
	case <-time.After(5 * time.Millisecond):
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
}

func (f *fakeList) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	}
	return ""
}

func TestMailQueue_PushEncodesJob(t *testing.T) {
	list := &fakeList{}
	q := NewMailQueue(list, zerolog.Nop())

	if err := q.SendPasswordResetEmail(context.Background(), "ada@example.com", "tok"); err != nil {
		t.Fatalf("push error: %v", err)
	}

	var job ports.MailJob
	if err := json.Unmarshal([]byte(list.items[0]), &job); err != nil {
		t.Fatalf("payload is not a mail job: %v", err)
	}
	if job.Kind != domain.MailPasswordReset || job.To != "ada@example.com" || job.Token != "tok" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestMailQueue_PushError(t *testing.T) {
	q := NewMailQueue(&fakeList{pushErr: errors.New("connection refused")}, zerolog.Nop())
	if err := q.SendVerificationEmail(context.Background(), "ada@example.com", "tok"); err == nil {
		t.Fatalf("expected push error")
	}
}

func TestMailQueue_ConsumeIsFIFO(t *testing.T) {
	list := &fakeList{}
	q := NewMailQueue(list, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	for _, tok := range []string{"t1", "t2", "t3"} {
		if err := q.SendVerificationEmail(ctx, "ada@example.com", tok); err != nil {
			t.Fatalf("push error: %v", err)
		}
	}
	list.RPush(ctx, outboxKey, "{not json")

	var got []string
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(job ports.MailJob) error {
			got = append(got, job.Token)
			if len(got) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Consume error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Consume did not stop after cancellation")
	}

	want := []string{"t1", "t2", "t3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v, want %v", got, want)
		}
	}
}

func TestMailQueue_ConsumeRequeuesRefusedJob(t *testing.T) {
	list := &fakeList{}
	q := NewMailQueue(list, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = q.SendVerificationEmail(ctx, "ada@example.com", "tok")

	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(ports.MailJob) error {
			cancel()
			return errors.New("mail queue full")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Consume did not stop")
	}
	if list.len() != 1 {
		t.Fatalf("expected refused job back in the outbox, got %d items", list.len())
	}
}
