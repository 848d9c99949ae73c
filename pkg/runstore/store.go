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

// Package runstore archives run snapshots in a local pebble keyspace:
//
//	run/<name>           latest snapshot
//	ckpt/<name>/<seq>    checkpoint history, seq as big-endian uint64
//
// Values are the metricio container bytes, so anything in the store can
// be inspected and exported with the same tooling as a file on disk.
package runstore

import (
	"context"
	"encoding/binary"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
	"github.com/matrixorigin/trainlog/pkg/livelog"
	"github.com/matrixorigin/trainlog/pkg/metricio"
)

var (
	runPrefix  = []byte("run/")
	ckptPrefix = []byte("ckpt/")
)

type Store struct {
	db     *pebble.DB
	closed int32
}

// a store can feed the bulk csv exporter directly
var _ metricio.SnapshotSource = (*Store)(nil)

// Open creates or reopens a store rooted at name.
func Open(name string) (*Store, error) {
	db, err := pebble.Open(name, &pebble.Options{})
	if err != nil {
		return nil, moerr.ConvertGoError(context.TODO(), err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	return moerr.ConvertGoError(context.TODO(), s.db.Close())
}

func (s *Store) guard() error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return moerr.NewStoreClosed(context.TODO())
	}
	return nil
}

// checkRun keeps names usable as keys and export filenames.
func checkRun(run string) error {
	if len(run) == 0 || strings.ContainsRune(run, '/') {
		return moerr.NewInvalidInput(context.TODO(), "bad run name %q", run)
	}
	return nil
}

func runKey(run string) []byte {
	return append(append([]byte{}, runPrefix...), run...)
}

// ckptSpace is the key range holding one run's checkpoint history.
func ckptSpace(run string) []byte {
	space := append(append([]byte{}, ckptPrefix...), run...)
	return append(space, '/')
}

func ckptKey(run string, seq uint64) []byte {
	key := ckptSpace(run)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

// Put stores snap as the latest state of run.
func (s *Store) Put(run string, snap *livelog.Snapshot) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := checkRun(run); err != nil {
		return err
	}
	data, err := metricio.Encode(snap)
	if err != nil {
		return err
	}
	return moerr.ConvertGoError(context.TODO(), s.db.Set(runKey(run), data, nil))
}

// Get returns the latest snapshot of run.
func (s *Store) Get(run string) (*livelog.Snapshot, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	data, err := s.get(runKey(run))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, moerr.NewRunNotFound(context.TODO(), run)
	}
	return metricio.Decode(data)
}

func (s *Store) get(k []byte) ([]byte, error) {
	v, c, err := s.db.Get(k)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, moerr.ConvertGoError(context.TODO(), err)
	}
	r := make([]byte, len(v))
	copy(r, v)
	c.Close()
	return r, nil
}

// Runs lists every archived run name in key order.
func (s *Store) Runs() ([]string, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: runPrefix,
		UpperBound: upperBound(runPrefix),
	})
	var runs []string
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		runs = append(runs, string(key[len(runPrefix):]))
	}
	err := iter.Error()
	if closeErr := iter.Close(); err == nil {
		err = closeErr
	}
	return runs, moerr.ConvertGoError(context.TODO(), err)
}

// AppendCheckpoint adds snap to run's history and makes it the latest
// state, atomically. It returns the assigned sequence number, starting
// at 1.
func (s *Store) AppendCheckpoint(run string, snap *livelog.Snapshot) (uint64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	if err := checkRun(run); err != nil {
		return 0, err
	}
	data, err := metricio.Encode(snap)
	if err != nil {
		return 0, err
	}
	last, err := s.lastSeq(run)
	if err != nil {
		return 0, err
	}
	seq := last + 1

	bat := s.db.NewBatch()
	defer bat.Close()
	if err := bat.Set(ckptKey(run, seq), data, nil); err != nil {
		return 0, moerr.ConvertGoError(context.TODO(), err)
	}
	if err := bat.Set(runKey(run), data, nil); err != nil {
		return 0, moerr.ConvertGoError(context.TODO(), err)
	}
	if err := bat.Commit(nil); err != nil {
		return 0, moerr.ConvertGoError(context.TODO(), err)
	}
	return seq, nil
}

func (s *Store) lastSeq(run string) (uint64, error) {
	space := ckptSpace(run)
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: space,
		UpperBound: upperBound(space),
	})
	var seq uint64
	if iter.Last() && iter.Valid() {
		key := iter.Key()
		if len(key) == len(space)+8 {
			seq = binary.BigEndian.Uint64(key[len(space):])
		}
	}
	err := iter.Error()
	if closeErr := iter.Close(); err == nil {
		err = closeErr
	}
	return seq, moerr.ConvertGoError(context.TODO(), err)
}

// Checkpoints lists run's checkpoint sequence numbers in ascending
// order.
func (s *Store) Checkpoints(run string) ([]uint64, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	space := ckptSpace(run)
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: space,
		UpperBound: upperBound(space),
	})
	var seqs []uint64
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) == len(space)+8 {
			seqs = append(seqs, binary.BigEndian.Uint64(key[len(space):]))
		}
	}
	err := iter.Error()
	if closeErr := iter.Close(); err == nil {
		err = closeErr
	}
	return seqs, moerr.ConvertGoError(context.TODO(), err)
}

// GetCheckpoint returns one historic snapshot of run.
func (s *Store) GetCheckpoint(run string, seq uint64) (*livelog.Snapshot, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	data, err := s.get(ckptKey(run, seq))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, moerr.NewRunNotFound(context.TODO(), run)
	}
	return metricio.Decode(data)
}

// LatestCheckpoint returns the newest historic snapshot of run and its
// sequence number.
func (s *Store) LatestCheckpoint(run string) (*livelog.Snapshot, uint64, error) {
	if err := s.guard(); err != nil {
		return nil, 0, err
	}
	seq, err := s.lastSeq(run)
	if err != nil {
		return nil, 0, err
	}
	if seq == 0 {
		return nil, 0, moerr.NewRunNotFound(context.TODO(), run)
	}
	snap, err := s.GetCheckpoint(run, seq)
	if err != nil {
		return nil, 0, err
	}
	return snap, seq, nil
}

// Delete removes run's latest state and its whole checkpoint history.
func (s *Store) Delete(run string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := checkRun(run); err != nil {
		return err
	}
	data, err := s.get(runKey(run))
	if err != nil {
		return err
	}
	if data == nil {
		return moerr.NewRunNotFound(context.TODO(), run)
	}

	space := ckptSpace(run)
	bat := s.db.NewBatch()
	defer bat.Close()
	if err := bat.Delete(runKey(run), nil); err != nil {
		return moerr.ConvertGoError(context.TODO(), err)
	}
	if err := bat.DeleteRange(space, upperBound(space), nil); err != nil {
		return moerr.ConvertGoError(context.TODO(), err)
	}
	return moerr.ConvertGoError(context.TODO(), bat.Commit(nil))
}

func upperBound(k []byte) []byte {
	u := make([]byte, len(k))
	copy(u, k)
	for i := len(u) - 1; i >= 0; i-- {
		u[i] = u[i] + 1
		if u[i] != 0 {
			return u[:i+1]
		}
	}
	return nil
}
