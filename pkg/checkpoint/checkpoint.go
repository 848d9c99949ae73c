// Copyright 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package checkpoint persists live logger snapshots on a timer so a
// crashed training run loses at most one interval of history. Sink
// failures are logged and counted, never fatal: the next tick simply
// tries again with a fresher snapshot.
package checkpoint

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matrixorigin/trainlog/pkg/config"
	"github.com/matrixorigin/trainlog/pkg/livelog"
	"github.com/matrixorigin/trainlog/pkg/logutil"
)

// Source yields the state to persist. livelog.Synced satisfies it.
type Source interface {
	Snapshot() *livelog.Snapshot
}

var _ Source = (*livelog.Synced)(nil)

// Sink persists one snapshot somewhere durable.
type Sink interface {
	Persist(ctx context.Context, snap *livelog.Snapshot) error
	Name() string
}

type Checkpointer struct {
	isRunning int32
	cancel    context.CancelFunc
	stopWg    sync.WaitGroup

	source   Source
	sinks    []Sink
	interval time.Duration

	persisted uint64
	failed    uint64
}

// NewCheckpointer flushes source to every sink each interval. An
// interval <= 0 falls back to the runtime knob.
func NewCheckpointer(source Source, interval time.Duration, sinks ...Sink) *Checkpointer {
	if interval <= 0 {
		interval = config.GetCheckpointInterval()
	}
	return &Checkpointer{
		source:   source,
		sinks:    sinks,
		interval: interval,
	}
}

func (c *Checkpointer) Start(inputCtx context.Context) bool {
	if atomic.SwapInt32(&c.isRunning, 1) == 1 {
		return false
	}
	ctx, cancel := context.WithCancel(inputCtx)
	c.cancel = cancel
	c.stopWg.Add(1)
	go func() {
		defer c.stopWg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.persistAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return true
}

// Stop halts the loop. With graceful set, one final flush runs after
// the loop exits so nothing recorded since the last tick is lost. The
// returned channel closes when shutdown is complete.
func (c *Checkpointer) Stop(graceful bool) (<-chan struct{}, bool) {
	if atomic.SwapInt32(&c.isRunning, 0) == 0 {
		return nil, false
	}
	c.cancel()
	stopCh := make(chan struct{})
	go func() {
		c.stopWg.Wait()
		if graceful {
			c.persistAll(context.Background())
		}
		close(stopCh)
	}()
	return stopCh, true
}

func (c *Checkpointer) persistAll(ctx context.Context) {
	snap := c.source.Snapshot()
	for _, sink := range c.sinks {
		if err := sink.Persist(ctx, snap); err != nil {
			atomic.AddUint64(&c.failed, 1)
			logutil.Errorf("checkpoint to %s failed: %v", sink.Name(), err)
			continue
		}
		atomic.AddUint64(&c.persisted, 1)
	}
}

// Persisted counts successful sink writes since construction.
func (c *Checkpointer) Persisted() uint64 { return atomic.LoadUint64(&c.persisted) }

// Failed counts failed sink writes since construction.
func (c *Checkpointer) Failed() uint64 { return atomic.LoadUint64(&c.failed) }
