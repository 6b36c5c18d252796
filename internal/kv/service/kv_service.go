package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthanhphan/go-kvs/internal/kv/port"
	"github.com/anthanhphan/go-kvs/pkg/workerpool"
	"github.com/anthanhphan/gosdk/logger"
)

// ErrTaskFailed reports an unexpected failure inside a dispatched
// engine call. It is surfaced to the waiting connection like any other
// I/O failure and never terminates a worker.
var ErrTaskFailed = errors.New("internal task failure")

// KVService runs engine operations on the worker pool so blocking disk
// I/O never runs on a connection goroutine. Each call submits exactly
// one task and blocks on its completion channel; per-connection
// ordering follows from one outstanding call per connection.
type KVService struct {
	engine port.Engine
	pool   *workerpool.Pool
}

func NewKVService(engine port.Engine, pool *workerpool.Pool) *KVService {
	return &KVService{engine: engine, pool: pool}
}

type getResult struct {
	value string
	found bool
	err   error
}

func (s *KVService) Get(ctx context.Context, key string) (string, bool, error) {
	ch := make(chan getResult, 1)
	err := s.pool.Submit(ctx, func() {
		defer reportPanic(func(err error) { ch <- getResult{err: err} })
		value, found, err := s.engine.Get(ctx, key)
		ch <- getResult{value: value, found: found, err: err}
	})
	if err != nil {
		return "", false, err
	}
	res := <-ch
	return res.value, res.found, res.err
}

func (s *KVService) Set(ctx context.Context, key, value string) error {
	ch := make(chan error, 1)
	err := s.pool.Submit(ctx, func() {
		defer reportPanic(func(err error) { ch <- err })
		ch <- s.engine.Set(ctx, key, value)
	})
	if err != nil {
		return err
	}
	return <-ch
}

func (s *KVService) Remove(ctx context.Context, key string) error {
	ch := make(chan error, 1)
	err := s.pool.Submit(ctx, func() {
		defer reportPanic(func(err error) { ch <- err })
		ch <- s.engine.Remove(ctx, key)
	})
	if err != nil {
		return err
	}
	return <-ch
}

// reportPanic converts a panicking task into a result on the
// completion channel, keeping the failure visible to the caller while
// the worker stays alive for subsequent tasks.
func reportPanic(report func(error)) {
	if r := recover(); r != nil {
		logger.Errorw("Engine task failed unexpectedly", "panic", r)
		report(fmt.Errorf("%w: %v", ErrTaskFailed, r))
	}
}
