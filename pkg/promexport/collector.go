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

// Package promexport exposes a live logger to Prometheus. The collector
// reads a fresh snapshot on every scrape, so it needs no registration
// of individual metric names up front.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matrixorigin/trainlog/pkg/livelog"
)

// Source yields the snapshot read on every scrape. livelog.Synced
// satisfies it.
type Source interface {
	Snapshot() *livelog.Snapshot
}

var _ Source = (*livelog.Synced)(nil)

type snapshotCollector struct {
	source Source

	batchLast    *prometheus.Desc
	epochLast    *prometheus.Desc
	batchesTotal *prometheus.Desc
	epochsTotal  *prometheus.Desc
}

// NewSnapshotCollector creates a Prometheus collector over source.
// Implementation is similar to
// https://pkg.go.dev/github.com/prometheus/client_golang/prometheus/collectors#NewDBStatsCollector
func NewSnapshotCollector(source Source) prometheus.Collector {
	return &snapshotCollector{
		source: source,
		batchLast: prometheus.NewDesc(
			"trainlog_batch_last",
			"Most recent recorded batch value of a metric.",
			[]string{"group", "metric"}, nil,
		),
		epochLast: prometheus.NewDesc(
			"trainlog_epoch_last",
			"Most recent closed epoch value of a metric.",
			[]string{"group", "metric"}, nil,
		),
		batchesTotal: prometheus.NewDesc(
			"trainlog_batches_total",
			"Number of batches recorded per group.",
			[]string{"group"}, nil,
		),
		epochsTotal: prometheus.NewDesc(
			"trainlog_epochs_total",
			"Number of epochs closed per group.",
			[]string{"group"}, nil,
		),
	}
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.batchLast
	ch <- c.epochLast
	ch <- c.batchesTotal
	ch <- c.epochsTotal
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()
	c.collectGroup(ch, livelog.GroupTrain.String(), snap.TrainMetrics, snap.NumTrainBatch, snap.NumTrainEpoch)
	c.collectGroup(ch, livelog.GroupTest.String(), snap.TestMetrics, snap.NumTestBatch, snap.NumTestEpoch)
}

func (c *snapshotCollector) collectGroup(ch chan<- prometheus.Metric, group string,
	metrics map[string]livelog.MetricSnapshot, numBatch, numEpoch int64) {
	ch <- prometheus.MustNewConstMetric(c.batchesTotal, prometheus.CounterValue, float64(numBatch), group)
	ch <- prometheus.MustNewConstMetric(c.epochsTotal, prometheus.CounterValue, float64(numEpoch), group)
	for name, ms := range metrics {
		if n := len(ms.BatchData); n > 0 {
			ch <- prometheus.MustNewConstMetric(c.batchLast, prometheus.GaugeValue, ms.BatchData[n-1], group, name)
		}
		if n := len(ms.EpochData); n > 0 {
			ch <- prometheus.MustNewConstMetric(c.epochLast, prometheus.GaugeValue, ms.EpochData[n-1], group, name)
		}
	}
}

var _ prometheus.Collector = new(snapshotCollector)

// Register hooks source up to r.
func Register(r prometheus.Registerer, source Source) error {
	return r.Register(NewSnapshotCollector(source))
}
