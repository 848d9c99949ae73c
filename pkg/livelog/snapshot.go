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

import (
	"context"
	"math"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
)

// MetricSnapshot is the full state of one accumulator at a quiescent
// point, pending window included.
type MetricSnapshot struct {
	Name        string
	BatchData   []float64
	EpochData   []float64
	EpochDomain []int64

	CountSinceEpoch int64
	TotalWeight     float64
	WeightedSum     float64
}

// Snapshot is the full state of a Logger. It is plain data: safe to hold,
// compare and ship to a codec.
type Snapshot struct {
	TrainMetrics map[string]MetricSnapshot
	TestMetrics  map[string]MetricSnapshot

	NumTrainBatch int64
	NumTrainEpoch int64
	NumTestBatch  int64
	NumTestEpoch  int64
}

// Validate checks the structural rules a restorable snapshot must obey.
// It does not second-guess values: NaN and Inf payloads are legal.
func (s *Snapshot) Validate() error {
	if s.NumTrainBatch < 0 || s.NumTrainEpoch < 0 || s.NumTestBatch < 0 || s.NumTestEpoch < 0 {
		return moerr.NewBadSnapshot(context.TODO(), "negative counter")
	}
	if err := validateGroup("train", s.TrainMetrics); err != nil {
		return err
	}
	return validateGroup("test", s.TestMetrics)
}

func validateGroup(group string, metrics map[string]MetricSnapshot) error {
	ctx := context.TODO()
	for name, ms := range metrics {
		if len(ms.Name) > 0 && ms.Name != name {
			return moerr.NewBadSnapshot(ctx, "%s metric %s carries name %s", group, name, ms.Name)
		}
		if len(ms.EpochData) != len(ms.EpochDomain) {
			return moerr.NewBadSnapshot(ctx, "%s metric %s has %d epoch values against %d domain entries",
				group, name, len(ms.EpochData), len(ms.EpochDomain))
		}
		if ms.CountSinceEpoch < 0 {
			return moerr.NewBadSnapshot(ctx, "%s metric %s has negative pending count", group, name)
		}
		if ms.CountSinceEpoch > int64(len(ms.BatchData)) {
			return moerr.NewBadSnapshot(ctx, "%s metric %s pending count %d exceeds %d batch entries",
				group, name, ms.CountSinceEpoch, len(ms.BatchData))
		}
	}
	return nil
}

// Clone returns a deep copy sharing no slices or maps with s.
func (s *Snapshot) Clone() *Snapshot {
	ns := &Snapshot{
		TrainMetrics:  cloneGroup(s.TrainMetrics),
		TestMetrics:   cloneGroup(s.TestMetrics),
		NumTrainBatch: s.NumTrainBatch,
		NumTrainEpoch: s.NumTrainEpoch,
		NumTestBatch:  s.NumTestBatch,
		NumTestEpoch:  s.NumTestEpoch,
	}
	return ns
}

func cloneGroup(metrics map[string]MetricSnapshot) map[string]MetricSnapshot {
	cloned := make(map[string]MetricSnapshot, len(metrics))
	for name, ms := range metrics {
		ms.BatchData = append([]float64(nil), ms.BatchData...)
		ms.EpochData = append([]float64(nil), ms.EpochData...)
		ms.EpochDomain = append([]int64(nil), ms.EpochDomain...)
		cloned[name] = ms
	}
	return cloned
}

// Equal reports whether two snapshots carry the same state. NaN entries
// compare equal to NaN in the same position.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.NumTrainBatch != o.NumTrainBatch || s.NumTrainEpoch != o.NumTrainEpoch ||
		s.NumTestBatch != o.NumTestBatch || s.NumTestEpoch != o.NumTestEpoch {
		return false
	}
	return groupEqual(s.TrainMetrics, o.TrainMetrics) && groupEqual(s.TestMetrics, o.TestMetrics)
}

func groupEqual(a, b map[string]MetricSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for name, am := range a {
		bm, ok := b[name]
		if !ok {
			return false
		}
		if am.Name != bm.Name ||
			am.CountSinceEpoch != bm.CountSinceEpoch ||
			!floatEqual(am.TotalWeight, bm.TotalWeight) ||
			!floatEqual(am.WeightedSum, bm.WeightedSum) {
			return false
		}
		if !floatsEqual(am.BatchData, bm.BatchData) || !floatsEqual(am.EpochData, bm.EpochData) {
			return false
		}
		if len(am.EpochDomain) != len(bm.EpochDomain) {
			return false
		}
		for i := range am.EpochDomain {
			if am.EpochDomain[i] != bm.EpochDomain[i] {
				return false
			}
		}
	}
	return true
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !floatEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func floatEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}
