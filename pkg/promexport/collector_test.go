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

package promexport

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/trainlog/pkg/livelog"
)

func scrapeSource(t *testing.T) *livelog.Synced {
	t.Helper()
	src := livelog.NewSynced()
	for _, v := range []float64{0.5, 0.25, 0.75} {
		require.NoError(t, src.RecordBatch(livelog.GroupTrain, map[string]float64{"loss": v}, 1))
	}
	src.CloseEpoch(livelog.GroupTrain)
	require.NoError(t, src.RecordBatch(livelog.GroupTest, map[string]float64{"loss": 0.5}, 1))
	return src
}

func TestSnapshotCollector(t *testing.T) {
	c := NewSnapshotCollector(scrapeSource(t))

	expected := `
# HELP trainlog_batch_last Most recent recorded batch value of a metric.
# TYPE trainlog_batch_last gauge
trainlog_batch_last{group="test",metric="loss"} 0.5
trainlog_batch_last{group="train",metric="loss"} 0.75
# HELP trainlog_batches_total Number of batches recorded per group.
# TYPE trainlog_batches_total counter
trainlog_batches_total{group="test"} 1
trainlog_batches_total{group="train"} 3
# HELP trainlog_epoch_last Most recent closed epoch value of a metric.
# TYPE trainlog_epoch_last gauge
trainlog_epoch_last{group="train",metric="loss"} 0.5
# HELP trainlog_epochs_total Number of epochs closed per group.
# TYPE trainlog_epochs_total counter
trainlog_epochs_total{group="test"} 0
trainlog_epochs_total{group="train"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestSnapshotCollector_tracksScrapes(t *testing.T) {
	src := scrapeSource(t)
	c := NewSnapshotCollector(src)

	// the test group has no closed epoch, so only train reports one
	assert.Equal(t, 1, testutil.CollectAndCount(c, "trainlog_epoch_last"))

	src.CloseEpoch(livelog.GroupTest)
	assert.Equal(t, 2, testutil.CollectAndCount(c, "trainlog_epoch_last"))
}

func TestSnapshotCollector_emptyLogger(t *testing.T) {
	c := NewSnapshotCollector(livelog.NewSynced())

	expected := `
# HELP trainlog_batches_total Number of batches recorded per group.
# TYPE trainlog_batches_total counter
trainlog_batches_total{group="test"} 0
trainlog_batches_total{group="train"} 0
# HELP trainlog_epochs_total Number of epochs closed per group.
# TYPE trainlog_epochs_total counter
trainlog_epochs_total{group="test"} 0
trainlog_epochs_total{group="train"} 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"trainlog_batches_total", "trainlog_epochs_total"))
	assert.Equal(t, 0, testutil.CollectAndCount(c, "trainlog_batch_last"))
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	src := scrapeSource(t)
	require.NoError(t, Register(reg, src))

	// the same descriptors cannot be registered twice
	assert.Error(t, Register(reg, src))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 4, len(families))
}
