package store

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/go-redis/redis/v8"
)

// memLists mimics the list commands used by the store.
type memLists struct {
	lists  map[string][]string
	failOn string
}

func newMemLists() *memLists { return &memLists{lists: map[string][]string{}} }

func (m *memLists) Pipeline() redis.Pipeliner { return &memPipe{m: m} }

func (m *memLists) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	if m.failOn == "lrange" {
		return redis.NewStringSliceResult(nil, errors.New("connection refused"))
	}
	l := m.lists[key]
	s, e := clamp(len(l), start, stop)
	return redis.NewStringSliceResult(append([]string(nil), l[s:e]...), nil)
}

func (m *memLists) Close() error { return nil }

// clamp resolves redis style inclusive indexes to a half open slice range.
func clamp(n int, start, stop int64) (int, int) {
	if start < 0 {
		start += int64(n)
	}
	if stop < 0 {
		stop += int64(n)
	}
	if start < 0 {
		start = 0
	}
	if stop >= int64(n) {
		stop = int64(n) - 1
	}
	if start > stop {
		return 0, 0
	}
	return int(start), int(stop) + 1
}

type memPipe struct {
	redis.Pipeliner
	m   *memLists
	ops []func()
}

func (p *memPipe) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	p.ops = append(p.ops, func() {
		for _, v := range values {
			p.m.lists[key] = append(p.m.lists[key], v.(string))
		}
	})
	return redis.NewIntResult(0, nil)
}

func (p *memPipe) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	p.ops = append(p.ops, func() {
		l := p.m.lists[key]
		s, e := clamp(len(l), start, stop)
		p.m.lists[key] = append([]string(nil), l[s:e]...)
	})
	return redis.NewStatusResult("OK", nil)
}

func (p *memPipe) Exec(ctx context.Context) ([]redis.Cmder, error) {
	if p.m.failOn == "exec" {
		return nil, errors.New("connection refused")
	}
	for _, op := range p.ops {
		op()
	}
	return nil, nil
}

func TestAppendTrimsToCapacity(t *testing.T) {
	mem := newMemLists()
	s := newRedisWithClient(mem, "test:")
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if err := s.Append(ctx, "btcusdt", float64(i)+0.5, 3); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	stored := mem.lists["test:window:BTCUSDT"]
	if len(stored) != 3 || stored[0] != "3.5" || stored[2] != "5.5" {
		t.Fatalf("unexpected stored list %v", stored)
	}

	got, err := s.Load(ctx, "BTCUSDT", 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0] != 4.5 || got[1] != 5.5 {
		t.Fatalf("unexpected window %v", got)
	}
}

func TestLoadSkipsGarbageAndEmptyKeys(t *testing.T) {
	mem := newMemLists()
	mem.lists["pairwatch:window:V"] = []string{"1", "oops", strconv.FormatFloat(2.25, 'g', -1, 64)}
	s := newRedisWithClient(mem, "")

	got, err := s.Load(context.Background(), "V", 10)
	if err != nil || len(got) != 2 || got[1] != 2.25 {
		t.Fatalf("unexpected %v %v", got, err)
	}
	got, err = s.Load(context.Background(), "MA", 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty key should load nothing, got %v %v", got, err)
	}
}

func TestStoreErrors(t *testing.T) {
	mem := newMemLists()
	s := newRedisWithClient(mem, "p")
	ctx := context.Background()

	if err := s.Append(ctx, "V", 1, 0); err == nil {
		t.Fatalf("expected capacity error")
	}
	mem.failOn = "exec"
	if err := s.Append(ctx, "V", 1, 3); err == nil {
		t.Fatalf("expected exec error")
	}
	mem.failOn = "lrange"
	if _, err := s.Load(ctx, "V", 3); err == nil {
		t.Fatalf("expected lrange error")
	}
}
