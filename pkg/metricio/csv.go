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
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
	"github.com/matrixorigin/trainlog/pkg/livelog"
)

type CsvOptions struct {
	FieldTerminator rune // like: ','
	EncloseRune     rune // like: '"'
	Terminator      rune // like: '\n'
}

var CommonCsvOptions = &CsvOptions{
	FieldTerminator: ',',
	EncloseRune:     '"',
	Terminator:      '\n',
}

// CSVHeader is the long-form export schema: one row per recorded point.
// Batch rows use the 1-based observation index as step; epoch rows use
// the epoch's domain position.
var CSVHeader = []string{"group", "metric", "series", "step", "value"}

const (
	seriesBatch = "batch"
	seriesEpoch = "epoch"
)

type CSVWriter interface {
	// WriteStrings write record as one line into csv file
	WriteStrings(record []string) error
	// FlushAndClose flush its buffer and close.
	FlushAndClose() error
}

var _ CSVWriter = (*ContentWriter)(nil)

type ContentWriter struct {
	writer io.Writer
	buf    *bytes.Buffer
	parser *csv.Writer
}

func NewContentWriter(writer io.Writer, buffer []byte) *ContentWriter {
	buf := bytes.NewBuffer(buffer)
	return &ContentWriter{
		writer: writer,
		buf:    buf,
		parser: csv.NewWriter(buf),
	}
}

func (w *ContentWriter) WriteStrings(record []string) error {
	if err := w.parser.Write(record); err != nil {
		return moerr.ConvertGoError(context.TODO(), err)
	}
	w.parser.Flush()
	return nil
}

func (w *ContentWriter) FlushAndClose() error {
	_, err := w.writer.Write(w.buf.Bytes())
	return moerr.ConvertGoError(context.TODO(), err)
}

// ExportCSV writes snap in long form. Metrics are emitted train family
// first, names sorted, batch series before epoch series.
func ExportCSV(w io.Writer, snap *livelog.Snapshot) error {
	if snap == nil {
		return moerr.NewBadSnapshot(context.TODO(), "nil snapshot")
	}
	cw := NewContentWriter(w, nil)
	if err := cw.WriteStrings(CSVHeader); err != nil {
		return err
	}
	if err := exportGroup(cw, livelog.GroupTrain.String(), snap.TrainMetrics); err != nil {
		return err
	}
	if err := exportGroup(cw, livelog.GroupTest.String(), snap.TestMetrics); err != nil {
		return err
	}
	return cw.FlushAndClose()
}

func exportGroup(cw CSVWriter, group string, metrics map[string]livelog.MetricSnapshot) error {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ms := metrics[name]
		for i, v := range ms.BatchData {
			record := []string{group, name, seriesBatch, strconv.Itoa(i + 1), formatFloat(v)}
			if err := cw.WriteStrings(record); err != nil {
				return err
			}
		}
		for i, v := range ms.EpochData {
			record := []string{group, name, seriesEpoch,
				strconv.FormatInt(ms.EpochDomain[i], 10), formatFloat(v)}
			if err := cw.WriteStrings(record); err != nil {
				return err
			}
		}
	}
	return nil
}

// formatFloat keeps NaN/Inf spellings strconv.ParseFloat reads back.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ExportCSVFile is ExportCSV against a freshly created file.
func ExportCSVFile(path string, snap *livelog.Snapshot) error {
	ctx := context.TODO()
	f, err := os.Create(path)
	if err != nil {
		return moerr.ConvertGoError(ctx, err)
	}
	if err := ExportCSV(f, snap); err != nil {
		_ = f.Close()
		return err
	}
	return moerr.ConvertGoError(ctx, f.Close())
}
