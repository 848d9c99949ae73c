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

package livelog

import "sync"

// Synced wraps a Logger with one lock so a training goroutine and
// background readers, a checkpointer for instance, can share it. Writer
// calls hold the lock exclusively; snapshot and counter reads share it.
type Synced struct {
	mu sync.RWMutex
	l  *Logger
}

func NewSynced() *Synced {
	return &Synced{l: NewLogger()}
}

// WrapSynced takes ownership of l. The caller must not touch l directly
// afterwards.
func WrapSynced(l *Logger) *Synced {
	return &Synced{l: l}
}

func (s *Synced) RecordBatch(g Group, observations map[string]float64, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.RecordBatch(g, observations, weight)
}

func (s *Synced) RecordBatchValues(g Group, observations map[string][]float64, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.l.RecordBatchValues(g, observations, weight)
}

func (s *Synced) CloseEpoch(g Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l.CloseEpoch(g)
}

func (s *Synced) CloseEpochAt(g Group, domain int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l.CloseEpochAt(g, domain)
}

func (s *Synced) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.l.Reset()
}

func (s *Synced) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.Snapshot()
}

func (s *Synced) MetricNames(g Group) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.MetricNames(g)
}

func (s *Synced) NumBatches(g Group) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.NumBatches(g)
}

func (s *Synced) NumEpochs(g Group) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l.NumEpochs(g)
}
