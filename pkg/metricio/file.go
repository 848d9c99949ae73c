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
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
	"github.com/matrixorigin/trainlog/pkg/livelog"
)

// LZ4Suffix selects lz4 stream compression on save and load.
const LZ4Suffix = ".lz4"

// Save writes snap to path. The bytes land in a temp file in the target
// directory first and are renamed into place, so a torn write never
// clobbers the previous checkpoint.
func Save(path string, snap *livelog.Snapshot) error {
	ctx := context.TODO()
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".trainlog-*.tmp")
	if err != nil {
		return moerr.ConvertGoError(ctx, err)
	}
	tmpName := tmp.Name()
	if err := writePayload(tmp, path, data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return moerr.ConvertGoError(ctx, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return moerr.ConvertGoError(ctx, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return moerr.ConvertGoError(ctx, err)
	}
	return nil
}

func writePayload(w io.Writer, path string, data []byte) error {
	if strings.HasSuffix(path, LZ4Suffix) {
		zw := lz4.NewWriter(w)
		if _, err := zw.Write(data); err != nil {
			return err
		}
		return zw.Close()
	}
	_, err := w.Write(data)
	return err
}

// Load reads the snapshot saved at path.
func Load(path string) (*livelog.Snapshot, error) {
	ctx := context.TODO()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, moerr.NewFileNotFound(ctx, path)
		}
		return nil, moerr.ConvertGoError(ctx, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, LZ4Suffix) {
		r = lz4.NewReader(f)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, moerr.ConvertGoError(ctx, err)
	}
	return Decode(data)
}

// SaveLogger persists l's current state.
func SaveLogger(path string, l *livelog.Logger) error {
	return Save(path, l.Snapshot())
}

// LoadLogger rebuilds a logger from a saved state. The result resumes
// exactly where the saved logger stood, pending windows included.
func LoadLogger(path string) (*livelog.Logger, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	return livelog.FromSnapshot(snap)
}
