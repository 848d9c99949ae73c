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
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
	"github.com/matrixorigin/trainlog/pkg/livelog"
	"github.com/matrixorigin/trainlog/pkg/logutil"
)

// SnapshotSource enumerates named runs and serves their snapshots. The
// runstore package satisfies it.
type SnapshotSource interface {
	Runs() ([]string, error)
	Get(run string) (*livelog.Snapshot, error)
}

// ExportAllCSV writes every run src knows to dir, one <run>.csv each, on
// a bounded worker pool. workers <= 0 means one per CPU. The first
// failure is returned after all scheduled runs finish.
func ExportAllCSV(ctx context.Context, src SnapshotSource, dir string, workers int) error {
	runs, err := src.Runs()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(runs) {
		workers = len(runs)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return moerr.ConvertGoError(ctx, err)
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return moerr.ConvertGoError(ctx, err)
	}
	defer pool.Release()

	errs := make([]error, len(runs))
	var wg sync.WaitGroup
	for i, run := range runs {
		i, run := i, run
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			errs[i] = exportRunCSV(ctx, src, dir, run)
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = moerr.ConvertGoError(ctx, submitErr)
		}
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			logutil.Errorf("export run %s failed: %v", runs[i], err)
			return err
		}
	}
	return nil
}

func exportRunCSV(ctx context.Context, src SnapshotSource, dir, run string) error {
	if err := ctx.Err(); err != nil {
		return moerr.ConvertGoError(ctx, err)
	}
	snap, err := src.Get(run)
	if err != nil {
		return err
	}
	return ExportCSVFile(filepath.Join(dir, run+".csv"), snap)
}
