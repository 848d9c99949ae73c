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

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
)

// Metric accumulates one named scalar series. Every observation lands in
// the batch series; a weighted running window feeds the next epoch
// aggregate. Values are recorded as given, NaN and Inf included.
type Metric struct {
	name string

	batchData   []float64
	epochData   []float64
	epochDomain []int64

	// pending window, zeroed at each epoch close
	runningWeightedSum float64
	totalWeight        float64
	countSinceEpoch    int64
}

func newMetric(name string) *Metric {
	return &Metric{name: name}
}

func (m *Metric) Name() string {
	return m.name
}

// AddObservation appends value to the batch series and folds it into the
// pending window. A zero weight still counts toward the window size but
// contributes nothing to the weighted sum. Negative weight is rejected
// before any state changes.
func (m *Metric) AddObservation(value, weight float64) error {
	if weight < 0 {
		return moerr.NewInvalidWeight(context.TODO(), weight)
	}
	m.batchData = append(m.batchData, value)
	if weight > 0 {
		m.runningWeightedSum += value * weight
		m.totalWeight += weight
	}
	m.countSinceEpoch++
	return nil
}

// CloseEpoch seals the pending window using the metric's own batch count
// as the domain position.
func (m *Metric) CloseEpoch() {
	m.CloseEpochAt(int64(len(m.batchData)))
}

// CloseEpochAt seals the pending window at the given domain position:
// the weighted mean of the window is appended to the epoch series and the
// window is reset. With nothing pending this is a no-op. When every
// pending observation carried zero weight the aggregate falls back to the
// arithmetic mean of the window. The domain never steps backwards: a
// candidate below the last recorded position is raised to it.
func (m *Metric) CloseEpochAt(domain int64) {
	if m.countSinceEpoch == 0 {
		return
	}
	if n := len(m.epochDomain); n > 0 && domain < m.epochDomain[n-1] {
		domain = m.epochDomain[n-1]
	}
	var aggregate float64
	if m.totalWeight > 0 {
		aggregate = m.runningWeightedSum / m.totalWeight
	} else {
		tail := m.batchData[int64(len(m.batchData))-m.countSinceEpoch:]
		var sum float64
		for _, v := range tail {
			sum += v
		}
		aggregate = sum / float64(len(tail))
	}
	m.epochData = append(m.epochData, aggregate)
	m.epochDomain = append(m.epochDomain, domain)
	m.runningWeightedSum = 0
	m.totalWeight = 0
	m.countSinceEpoch = 0
}

// BatchData returns a copy of the raw observation series.
func (m *Metric) BatchData() []float64 {
	return append([]float64(nil), m.batchData...)
}

// EpochData returns a copy of the epoch aggregate series.
func (m *Metric) EpochData() []float64 {
	return append([]float64(nil), m.epochData...)
}

// EpochDomain returns a copy of the domain positions, aligned with
// EpochData.
func (m *Metric) EpochDomain() []int64 {
	return append([]int64(nil), m.epochDomain...)
}

func (m *Metric) BatchLen() int {
	return len(m.batchData)
}

func (m *Metric) EpochLen() int {
	return len(m.epochData)
}

// CountSinceEpoch reports how many observations the pending window holds.
func (m *Metric) CountSinceEpoch() int64 {
	return m.countSinceEpoch
}

// TotalWeight reports the pending window's accumulated weight.
func (m *Metric) TotalWeight() float64 {
	return m.totalWeight
}

// LastBatch returns the most recent raw observation.
func (m *Metric) LastBatch() (float64, bool) {
	if len(m.batchData) == 0 {
		return 0, false
	}
	return m.batchData[len(m.batchData)-1], true
}

// LastEpoch returns the most recent epoch aggregate and its domain
// position.
func (m *Metric) LastEpoch() (value float64, domain int64, ok bool) {
	if len(m.epochData) == 0 {
		return 0, 0, false
	}
	n := len(m.epochData)
	return m.epochData[n-1], m.epochDomain[n-1], true
}

func (m *Metric) snapshot() MetricSnapshot {
	return MetricSnapshot{
		Name:            m.name,
		BatchData:       append([]float64(nil), m.batchData...),
		EpochData:       append([]float64(nil), m.epochData...),
		EpochDomain:     append([]int64(nil), m.epochDomain...),
		CountSinceEpoch: m.countSinceEpoch,
		TotalWeight:     m.totalWeight,
		WeightedSum:     m.runningWeightedSum,
	}
}

// metricFromSnapshot rebuilds an accumulator, pending window included.
// The snapshot must have passed Validate.
func metricFromSnapshot(name string, ms MetricSnapshot) *Metric {
	return &Metric{
		name:               name,
		batchData:          append([]float64(nil), ms.BatchData...),
		epochData:          append([]float64(nil), ms.EpochData...),
		epochDomain:        append([]int64(nil), ms.EpochDomain...),
		runningWeightedSum: ms.WeightedSum,
		totalWeight:        ms.TotalWeight,
		countSinceEpoch:    ms.CountSinceEpoch,
	}
}
