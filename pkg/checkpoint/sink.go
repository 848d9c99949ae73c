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

package checkpoint

import (
	"context"
	"path/filepath"

	"github.com/matrixorigin/trainlog/pkg/livelog"
	"github.com/matrixorigin/trainlog/pkg/metricio"
	"github.com/matrixorigin/trainlog/pkg/runstore"
)

// stubbed in tests
var saveFile = metricio.Save

// FileSink rewrites one snapshot file in place on every flush.
type FileSink struct {
	path string
}

// NewFileSink persists run under dir as <run>.trainlog, with the lz4
// suffix when compress is set.
func NewFileSink(dir, run string, compress bool) *FileSink {
	path := filepath.Join(dir, run+".trainlog")
	if compress {
		path += metricio.LZ4Suffix
	}
	return &FileSink{path: path}
}

func (s *FileSink) Persist(ctx context.Context, snap *livelog.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return saveFile(s.path, snap)
}

func (s *FileSink) Name() string { return "file:" + s.path }

// StoreSink appends every flush to a run's checkpoint history.
type StoreSink struct {
	store *runstore.Store
	run   string
}

func NewStoreSink(store *runstore.Store, run string) *StoreSink {
	return &StoreSink{store: store, run: run}
}

func (s *StoreSink) Persist(ctx context.Context, snap *livelog.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.store.AppendCheckpoint(s.run, snap)
	return err
}

func (s *StoreSink) Name() string { return "store:" + s.run }

var (
	_ Sink = (*FileSink)(nil)
	_ Sink = (*StoreSink)(nil)
)
