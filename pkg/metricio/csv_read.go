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
	"context"
	"io"
	"os"
	"strconv"

	"github.com/matrixorigin/simdcsv"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
	"github.com/matrixorigin/trainlog/pkg/livelog"
)

type CSVReader interface {
	ReadLine() ([]string, error)
	Close()
}

type ContentReader struct {
	ctx     context.Context
	idx     int
	length  int
	content [][]string

	reader *simdcsv.Reader
	raw    io.Closer
}

// BatchReadRows bounds one chunked read from the csv parser.
const BatchReadRows = 4000

func NewContentReader(ctx context.Context, reader *simdcsv.Reader, raw io.Closer) *ContentReader {
	return &ContentReader{
		ctx:     ctx,
		content: make([][]string, BatchReadRows),
		reader:  reader,
		raw:     raw,
	}
}

// ReadLine returns the next record, or nil once the input is drained.
func (s *ContentReader) ReadLine() ([]string, error) {
	if s.idx == s.length && s.reader != nil {
		var cnt int
		var err error
		s.content, cnt, err = s.reader.Read(BatchReadRows, s.ctx, s.content)
		if err != nil {
			return nil, err
		}
		if cnt < BatchReadRows {
			s.reader = nil
			if s.raw != nil {
				_ = s.raw.Close()
				s.raw = nil
			}
		}
		s.idx = 0
		s.length = cnt
	}
	if s.idx < s.length {
		idx := s.idx
		s.idx++
		return s.content[idx], nil
	}
	return nil, nil
}

func (s *ContentReader) Close() {
	capLen := cap(s.content)
	s.content = s.content[:capLen]
	for idx := range s.content {
		s.content[idx] = nil
	}
	if s.raw != nil {
		_ = s.raw.Close()
		s.raw = nil
	}
}

// ImportCSV rebuilds a snapshot from the long-form layout ExportCSV
// writes. Pending windows are not representable in that layout, so the
// result sits at a clean epoch boundary; group counters are recovered as
// the longest series length in the family.
func ImportCSV(ctx context.Context, r io.Reader) (*livelog.Snapshot, error) {
	reader := simdcsv.NewReaderWithOptions(r,
		CommonCsvOptions.FieldTerminator,
		'#',
		true,
		true)
	cr := NewContentReader(ctx, reader, nil)
	defer cr.Close()

	header, err := cr.ReadLine()
	if err != nil {
		return nil, moerr.ConvertGoError(ctx, err)
	}
	if !isCSVHeader(header) {
		return nil, moerr.NewBadCSVRow(ctx, 1, "want header %v", CSVHeader)
	}

	builder := newSnapshotBuilder()
	line := 1
	for {
		record, err := cr.ReadLine()
		if err != nil {
			return nil, moerr.ConvertGoError(ctx, err)
		}
		if record == nil {
			break
		}
		line++
		if err := builder.addRow(ctx, line, record); err != nil {
			return nil, err
		}
	}
	return builder.finish()
}

// ImportCSVFile is ImportCSV against a file on disk.
func ImportCSVFile(ctx context.Context, path string) (*livelog.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, moerr.NewFileNotFound(ctx, path)
		}
		return nil, moerr.ConvertGoError(ctx, err)
	}
	defer f.Close()
	return ImportCSV(ctx, f)
}

func isCSVHeader(record []string) bool {
	if len(record) != len(CSVHeader) {
		return false
	}
	for i, field := range CSVHeader {
		if record[i] != field {
			return false
		}
	}
	return true
}

type snapshotBuilder struct {
	groups map[string]map[string]*livelog.MetricSnapshot
}

func newSnapshotBuilder() *snapshotBuilder {
	return &snapshotBuilder{
		groups: map[string]map[string]*livelog.MetricSnapshot{
			livelog.GroupTrain.String(): {},
			livelog.GroupTest.String():  {},
		},
	}
}

func (b *snapshotBuilder) addRow(ctx context.Context, line int, record []string) error {
	if len(record) != len(CSVHeader) {
		return moerr.NewBadCSVRow(ctx, line, "want %d fields, got %d", len(CSVHeader), len(record))
	}
	group, name, series := record[0], record[1], record[2]
	metrics, ok := b.groups[group]
	if !ok {
		return moerr.NewBadCSVRow(ctx, line, "unknown group %q", group)
	}
	if len(name) == 0 {
		return moerr.NewBadCSVRow(ctx, line, "empty metric name")
	}
	step, err := strconv.ParseInt(record[3], 10, 64)
	if err != nil {
		return moerr.NewBadCSVRow(ctx, line, "bad step %q", record[3])
	}
	value, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return moerr.NewBadCSVRow(ctx, line, "bad value %q", record[4])
	}

	ms, ok := metrics[name]
	if !ok {
		ms = &livelog.MetricSnapshot{Name: name}
		metrics[name] = ms
	}
	switch series {
	case seriesBatch:
		if step != int64(len(ms.BatchData))+1 {
			return moerr.NewBadCSVRow(ctx, line, "batch step %d out of order, want %d",
				step, len(ms.BatchData)+1)
		}
		ms.BatchData = append(ms.BatchData, value)
	case seriesEpoch:
		ms.EpochData = append(ms.EpochData, value)
		ms.EpochDomain = append(ms.EpochDomain, step)
	default:
		return moerr.NewBadCSVRow(ctx, line, "unknown series %q", series)
	}
	return nil
}

func (b *snapshotBuilder) finish() (*livelog.Snapshot, error) {
	snap := &livelog.Snapshot{
		TrainMetrics: make(map[string]livelog.MetricSnapshot),
		TestMetrics:  make(map[string]livelog.MetricSnapshot),
	}
	for name, ms := range b.groups[livelog.GroupTrain.String()] {
		snap.TrainMetrics[name] = *ms
	}
	for name, ms := range b.groups[livelog.GroupTest.String()] {
		snap.TestMetrics[name] = *ms
	}
	snap.NumTrainBatch, snap.NumTrainEpoch = recoverCounters(snap.TrainMetrics)
	snap.NumTestBatch, snap.NumTestEpoch = recoverCounters(snap.TestMetrics)
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

func recoverCounters(metrics map[string]livelog.MetricSnapshot) (numBatch, numEpoch int64) {
	for _, ms := range metrics {
		if n := int64(len(ms.BatchData)); n > numBatch {
			numBatch = n
		}
		if n := int64(len(ms.EpochData)); n > numEpoch {
			numEpoch = n
		}
	}
	return numBatch, numEpoch
}
