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

// Package metricio is the persistence boundary for livelog snapshots:
// a JSON codec tolerant of NaN and Inf payloads, atomic file save/load
// with optional lz4 compression, and long-form CSV export/import.
package metricio

import (
	"context"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
	"github.com/matrixorigin/trainlog/pkg/livelog"
)

// json sorts map keys so equal snapshots encode to equal bytes.
var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// wireFloat carries NaN and the infinities through strict JSON as the
// string literals "NaN", "Infinity" and "-Infinity".
type wireFloat float64

func (f wireFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	default:
		return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
	}
}

func (f *wireFloat) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return moerr.NewBadSnapshot(context.TODO(), "bad float payload %s", string(data))
		}
		switch s {
		case "NaN":
			*f = wireFloat(math.NaN())
		case "Infinity":
			*f = wireFloat(math.Inf(1))
		case "-Infinity":
			*f = wireFloat(math.Inf(-1))
		default:
			return moerr.NewBadSnapshot(context.TODO(), "bad float literal %q", s)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return moerr.NewBadSnapshot(context.TODO(), "non-numeric payload %s", string(data))
	}
	*f = wireFloat(v)
	return nil
}

type wireMetric struct {
	BatchData   []wireFloat `json:"batch_data"`
	EpochData   []wireFloat `json:"epoch_data"`
	EpochDomain []int64     `json:"epoch_domain"`

	PendingCount       int64     `json:"pending_count"`
	PendingTotalWeight wireFloat `json:"pending_total_weight"`
	PendingWeightedSum wireFloat `json:"pending_weighted_sum"`
}

type wireCounters struct {
	NumTrainBatch int64 `json:"num_train_batch"`
	NumTrainEpoch int64 `json:"num_train_epoch"`
	NumTestBatch  int64 `json:"num_test_batch"`
	NumTestEpoch  int64 `json:"num_test_epoch"`
}

type wireSnapshot struct {
	TrainMetrics map[string]wireMetric `json:"train_metrics"`
	TestMetrics  map[string]wireMetric `json:"test_metrics"`
	Counters     wireCounters          `json:"counters"`
}

// requiredKeys must all be present in a persisted container.
var requiredKeys = []string{"train_metrics", "test_metrics", "counters"}

// Encode serializes snap. Equal snapshots yield byte-identical output.
func Encode(snap *livelog.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, moerr.NewBadSnapshot(context.TODO(), "nil snapshot")
	}
	ws := wireSnapshot{
		TrainMetrics: toWireGroup(snap.TrainMetrics),
		TestMetrics:  toWireGroup(snap.TestMetrics),
		Counters: wireCounters{
			NumTrainBatch: snap.NumTrainBatch,
			NumTrainEpoch: snap.NumTrainEpoch,
			NumTestBatch:  snap.NumTestBatch,
			NumTestEpoch:  snap.NumTestEpoch,
		},
	}
	data, err := json.Marshal(ws)
	if err != nil {
		return nil, moerr.ConvertGoError(context.TODO(), err)
	}
	return data, nil
}

// Decode parses a persisted container back into a validated snapshot.
// Malformed input, missing required keys, ragged epoch pairs or
// non-numeric payloads, yields ErrBadSnapshot and no partial state.
func Decode(data []byte) (*livelog.Snapshot, error) {
	ctx := context.TODO()

	var probe map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, moerr.NewBadSnapshot(ctx, "not a json object: %v", err)
	}
	for _, key := range requiredKeys {
		if _, ok := probe[key]; !ok {
			return nil, moerr.NewBadSnapshot(ctx, "missing key %s", key)
		}
	}

	var ws wireSnapshot
	if err := json.Unmarshal(data, &ws); err != nil {
		if moerr.IsMoErrCode(err, moerr.ErrBadSnapshot) {
			return nil, err
		}
		return nil, moerr.NewBadSnapshot(ctx, "%v", err)
	}

	snap := &livelog.Snapshot{
		TrainMetrics:  fromWireGroup(ws.TrainMetrics),
		TestMetrics:   fromWireGroup(ws.TestMetrics),
		NumTrainBatch: ws.Counters.NumTrainBatch,
		NumTrainEpoch: ws.Counters.NumTrainEpoch,
		NumTestBatch:  ws.Counters.NumTestBatch,
		NumTestEpoch:  ws.Counters.NumTestEpoch,
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

func toWireGroup(metrics map[string]livelog.MetricSnapshot) map[string]wireMetric {
	wire := make(map[string]wireMetric, len(metrics))
	for name, ms := range metrics {
		wire[name] = wireMetric{
			BatchData:          toWireFloats(ms.BatchData),
			EpochData:          toWireFloats(ms.EpochData),
			EpochDomain:        append([]int64{}, ms.EpochDomain...),
			PendingCount:       ms.CountSinceEpoch,
			PendingTotalWeight: wireFloat(ms.TotalWeight),
			PendingWeightedSum: wireFloat(ms.WeightedSum),
		}
	}
	return wire
}

func fromWireGroup(wire map[string]wireMetric) map[string]livelog.MetricSnapshot {
	metrics := make(map[string]livelog.MetricSnapshot, len(wire))
	for name, wm := range wire {
		metrics[name] = livelog.MetricSnapshot{
			Name:            name,
			BatchData:       fromWireFloats(wm.BatchData),
			EpochData:       fromWireFloats(wm.EpochData),
			EpochDomain:     append([]int64{}, wm.EpochDomain...),
			CountSinceEpoch: wm.PendingCount,
			TotalWeight:     float64(wm.PendingTotalWeight),
			WeightedSum:     float64(wm.PendingWeightedSum),
		}
	}
	return metrics
}

func toWireFloats(vs []float64) []wireFloat {
	ws := make([]wireFloat, len(vs))
	for i, v := range vs {
		ws[i] = wireFloat(v)
	}
	return ws
}

func fromWireFloats(ws []wireFloat) []float64 {
	vs := make([]float64, len(ws))
	for i, w := range ws {
		vs[i] = float64(w)
	}
	return vs
}
