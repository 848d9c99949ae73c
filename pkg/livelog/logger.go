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

// Package livelog accumulates live training metrics. A Logger owns a
// train family and a test family of named Metric accumulators; callers
// push per-batch observations as they happen and seal epochs to obtain
// weighted aggregates, without ever re-scanning history. The full state
// round-trips through Snapshot for persistence and tooling.
//
// A Logger is not safe for concurrent use; wrap it in Synced when more
// than one goroutine touches it.
package livelog

import (
	"context"
	"sort"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
)

type groupState struct {
	metrics  map[string]*Metric
	order    []string
	numBatch int64
	numEpoch int64
}

func (gs *groupState) metric(name string) *Metric {
	m, ok := gs.metrics[name]
	if !ok {
		m = newMetric(name)
		gs.metrics[name] = m
		gs.order = append(gs.order, name)
	}
	return m
}

// Logger is the registry of live metric accumulators for one run.
type Logger struct {
	groups [numGroups]groupState
}

func NewLogger() *Logger {
	l := &Logger{}
	for i := range l.groups {
		l.groups[i].metrics = make(map[string]*Metric)
	}
	return l
}

// RecordBatch feeds one batch of observations into group g, creating
// accumulators for names seen for the first time. All observations of the
// call share one weight; a negative weight rejects the whole batch before
// any state changes. The group's batch counter advances iff the group
// holds at least one accumulator once the incoming names are admitted, so
// an empty batch against an empty group leaves the counter alone.
func (l *Logger) RecordBatch(g Group, observations map[string]float64, weight float64) error {
	if !g.valid() {
		return moerr.NewInvalidInput(context.TODO(), "unknown metric group %d", int8(g))
	}
	if weight < 0 {
		return moerr.NewInvalidWeight(context.TODO(), weight)
	}
	gs := &l.groups[g]
	names := make([]string, 0, len(observations))
	for name := range observations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := gs.metric(name).AddObservation(observations[name], weight); err != nil {
			return err
		}
	}
	if len(gs.metrics) > 0 {
		gs.numBatch++
	}
	return nil
}

// RecordBatchValues is RecordBatch for callers holding per-name sample
// slices: each slice reduces to its arithmetic mean at this boundary.
// Empty slices contribute nothing.
func (l *Logger) RecordBatchValues(g Group, observations map[string][]float64, weight float64) error {
	if !g.valid() {
		return moerr.NewInvalidInput(context.TODO(), "unknown metric group %d", int8(g))
	}
	if weight < 0 {
		return moerr.NewInvalidWeight(context.TODO(), weight)
	}
	reduced := make(map[string]float64, len(observations))
	for name, values := range observations {
		if len(values) == 0 {
			continue
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		reduced[name] = sum / float64(len(values))
	}
	return l.RecordBatch(g, reduced, weight)
}

// CloseEpoch seals the pending window of every accumulator in group g and
// advances the group's epoch counter. The domain position recorded for a
// metric is the peer group's batch counter when the peer holds a metric
// of the same name and has seen at least one batch; otherwise the
// metric's own batch length. That keeps a sparsely-evaluated family
// plotted against the busy family's batch axis.
func (l *Logger) CloseEpoch(g Group) {
	l.closeEpoch(g, nil)
}

// CloseEpochAt is CloseEpoch with an explicit domain position applied to
// every accumulator in the group.
func (l *Logger) CloseEpochAt(g Group, domain int64) {
	l.closeEpoch(g, &domain)
}

func (l *Logger) closeEpoch(g Group, override *int64) {
	if !g.valid() {
		panic(moerr.NewInternalError(context.TODO(), "unknown metric group %d", int8(g)))
	}
	gs := &l.groups[g]
	peer := &l.groups[g.peer()]
	for _, name := range gs.order {
		m := gs.metrics[name]
		_, inPeer := peer.metrics[name]
		switch {
		case override != nil:
			m.CloseEpochAt(*override)
		case inPeer && peer.numBatch > 0:
			m.CloseEpochAt(peer.numBatch)
		default:
			m.CloseEpoch()
		}
	}
	// the epoch counter moves even when every close was a no-op
	gs.numEpoch++
}

// Metric returns the live accumulator for name in group g. The returned
// Metric shares state with the Logger; use the copying accessors on it.
func (l *Logger) Metric(g Group, name string) (*Metric, bool) {
	if !g.valid() {
		return nil, false
	}
	m, ok := l.groups[g].metrics[name]
	return m, ok
}

// MetricNames lists group g's metric names in first-seen order. A Logger
// rebuilt from a snapshot lists them sorted.
func (l *Logger) MetricNames(g Group) []string {
	if !g.valid() {
		return nil
	}
	return append([]string(nil), l.groups[g].order...)
}

func (l *Logger) NumBatches(g Group) int64 {
	if !g.valid() {
		return 0
	}
	return l.groups[g].numBatch
}

func (l *Logger) NumEpochs(g Group) int64 {
	if !g.valid() {
		return 0
	}
	return l.groups[g].numEpoch
}

// Reset drops every accumulator and zeroes all counters.
func (l *Logger) Reset() {
	for i := range l.groups {
		l.groups[i] = groupState{metrics: make(map[string]*Metric)}
	}
}

// Snapshot captures the complete state, pending windows included. The
// result shares nothing with the Logger.
func (l *Logger) Snapshot() *Snapshot {
	snap := &Snapshot{
		TrainMetrics:  make(map[string]MetricSnapshot, len(l.groups[GroupTrain].metrics)),
		TestMetrics:   make(map[string]MetricSnapshot, len(l.groups[GroupTest].metrics)),
		NumTrainBatch: l.groups[GroupTrain].numBatch,
		NumTrainEpoch: l.groups[GroupTrain].numEpoch,
		NumTestBatch:  l.groups[GroupTest].numBatch,
		NumTestEpoch:  l.groups[GroupTest].numEpoch,
	}
	for name, m := range l.groups[GroupTrain].metrics {
		snap.TrainMetrics[name] = m.snapshot()
	}
	for name, m := range l.groups[GroupTest].metrics {
		snap.TestMetrics[name] = m.snapshot()
	}
	return snap
}

// FromSnapshot rebuilds a Logger whose Snapshot equals snap. Restored
// metrics resume exactly where they left off, mid-epoch state included.
func FromSnapshot(snap *Snapshot) (*Logger, error) {
	if snap == nil {
		return nil, moerr.NewBadSnapshot(context.TODO(), "nil snapshot")
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	l := NewLogger()
	l.groups[GroupTrain].restore(snap.TrainMetrics)
	l.groups[GroupTest].restore(snap.TestMetrics)
	l.groups[GroupTrain].numBatch = snap.NumTrainBatch
	l.groups[GroupTrain].numEpoch = snap.NumTrainEpoch
	l.groups[GroupTest].numBatch = snap.NumTestBatch
	l.groups[GroupTest].numEpoch = snap.NumTestEpoch
	return l, nil
}

func (gs *groupState) restore(metrics map[string]MetricSnapshot) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		gs.metrics[name] = metricFromSnapshot(name, metrics[name])
	}
	gs.order = names
}
