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

package metricio

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
	"github.com/matrixorigin/trainlog/pkg/livelog"
)

func TestExportCSV(t *testing.T) {
	l := livelog.NewLogger()
	require.NoError(t, l.RecordBatch(livelog.GroupTrain, map[string]float64{"a": 1}, 1))
	require.NoError(t, l.RecordBatch(livelog.GroupTrain, map[string]float64{"a": 3}, 1))
	l.CloseEpoch(livelog.GroupTrain)
	require.NoError(t, l.RecordBatch(livelog.GroupTest, map[string]float64{"b": math.NaN()}, 1))

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, l.Snapshot()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, []string{
		"group,metric,series,step,value",
		"train,a,batch,1,1",
		"train,a,batch,2,3",
		"train,a,epoch,2,2",
		"test,b,batch,1,NaN",
	}, lines)
}

func TestCSV_RoundTrip(t *testing.T) {
	snap := sampleLogger(t).Snapshot()

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, snap))
	imported, err := ImportCSV(context.TODO(), bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	// csv carries the series but not the pending window
	want := snap.Clone()
	for name, ms := range want.TrainMetrics {
		ms.CountSinceEpoch, ms.TotalWeight, ms.WeightedSum = 0, 0, 0
		want.TrainMetrics[name] = ms
	}
	for name, ms := range want.TestMetrics {
		ms.CountSinceEpoch, ms.TotalWeight, ms.WeightedSum = 0, 0, 0
		want.TestMetrics[name] = ms
	}
	require.True(t, want.Equal(imported))
}

func TestCSV_RoundTripChunked(t *testing.T) {
	// more rows than one chunked read returns
	l := livelog.NewLogger()
	for i := 0; i < BatchReadRows+500; i++ {
		require.NoError(t, l.RecordBatch(livelog.GroupTrain, map[string]float64{"loss": float64(i)}, 1))
	}
	l.CloseEpoch(livelog.GroupTrain)
	snap := l.Snapshot()

	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, snap))
	imported, err := ImportCSV(context.TODO(), bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	ms := imported.TrainMetrics["loss"]
	require.Equal(t, BatchReadRows+500, len(ms.BatchData))
	require.Equal(t, snap.TrainMetrics["loss"].EpochData, ms.EpochData)
	require.Equal(t, int64(BatchReadRows+500), imported.NumTrainBatch)
}

func TestImportCSV_malformed(t *testing.T) {
	header := strings.Join(CSVHeader, ",")
	type args struct {
		data string
	}
	tests := []struct {
		name   string
		args   args
		badRow bool // expect ErrBadCSVRow specifically
	}{
		{
			name:   "wrong header",
			args:   args{data: "a,b,c,d,e\n"},
			badRow: true,
		},
		{
			name:   "unknown group",
			args:   args{data: header + "\nvalidate,loss,batch,1,0.5\n"},
			badRow: true,
		},
		{
			name:   "unknown series",
			args:   args{data: header + "\ntrain,loss,median,1,0.5\n"},
			badRow: true,
		},
		{
			name:   "bad step",
			args:   args{data: header + "\ntrain,loss,batch,one,0.5\n"},
			badRow: true,
		},
		{
			name:   "bad value",
			args:   args{data: header + "\ntrain,loss,batch,1,half\n"},
			badRow: true,
		},
		{
			name:   "empty metric name",
			args:   args{data: header + "\ntrain,,batch,1,0.5\n"},
			badRow: true,
		},
		{
			name:   "batch step out of order",
			args:   args{data: header + "\ntrain,loss,batch,1,0.5\ntrain,loss,batch,3,0.6\n"},
			badRow: true,
		},
		{
			name: "short record",
			args: args{data: header + "\ntrain,loss,batch,1\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportCSV(context.TODO(), strings.NewReader(tt.args.data))
			require.Error(t, err)
			if tt.badRow {
				require.True(t, moerr.IsMoErrCode(err, moerr.ErrBadCSVRow), "got %v", err)
			}
		})
	}
}

func TestImportCSV_headerOnly(t *testing.T) {
	data := strings.Join(CSVHeader, ",") + "\n"
	snap, err := ImportCSV(context.TODO(), strings.NewReader(data))
	require.NoError(t, err)
	require.Empty(t, snap.TrainMetrics)
	require.Empty(t, snap.TestMetrics)
}

func TestExportCSVFile_roundTrip(t *testing.T) {
	snap := sampleLogger(t).Snapshot()
	p := t.TempDir() + "/run.csv"
	require.NoError(t, ExportCSVFile(p, snap))

	imported, err := ImportCSVFile(context.TODO(), p)
	require.NoError(t, err)
	require.Equal(t,
		snap.TrainMetrics["loss"].BatchData,
		imported.TrainMetrics["loss"].BatchData)

	_, err = ImportCSVFile(context.TODO(), p+".absent")
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrFileNotFound))
}

func TestFormatFloat(t *testing.T) {
	for _, tc := range []struct {
		in   float64
		want string
	}{
		{1, "1"},
		{0.5, "0.5"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "+Inf"},
		{math.Inf(-1), "-Inf"},
	} {
		require.Equal(t, tc.want, formatFloat(tc.in), fmt.Sprintf("%v", tc.in))
	}
}
