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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/trainlog/pkg/livelog"
	"github.com/matrixorigin/trainlog/pkg/metricio"
	"github.com/matrixorigin/trainlog/pkg/runstore"
)

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	src := testSource(t)
	want := src.Snapshot()

	sink := NewFileSink(dir, "mnist", false)
	require.NoError(t, sink.Persist(context.Background(), want))

	got, err := metricio.Load(filepath.Join(dir, "mnist.trainlog"))
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestFileSink_compressed(t *testing.T) {
	dir := t.TempDir()
	src := testSource(t)
	want := src.Snapshot()

	sink := NewFileSink(dir, "mnist", true)
	assert.True(t, strings.HasSuffix(sink.Name(), metricio.LZ4Suffix))
	require.NoError(t, sink.Persist(context.Background(), want))

	got, err := metricio.Load(filepath.Join(dir, "mnist.trainlog"+metricio.LZ4Suffix))
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestFileSink_canceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := NewFileSink(t.TempDir(), "mnist", false)
	assert.Error(t, sink.Persist(ctx, testSource(t).Snapshot()))
}

func TestStoreSink(t *testing.T) {
	store, err := runstore.Open(filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, err)
	defer store.Close()

	src := testSource(t)
	sink := NewStoreSink(store, "mnist")
	require.NoError(t, sink.Persist(context.Background(), src.Snapshot()))

	require.NoError(t, src.RecordBatch(livelog.GroupTest, map[string]float64{"loss": 0.9}, 1))
	require.NoError(t, sink.Persist(context.Background(), src.Snapshot()))

	seqs, err := store.Checkpoints("mnist")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, seqs)

	latest, seq, err := store.LatestCheckpoint("mnist")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
	assert.True(t, src.Snapshot().Equal(latest))
}
