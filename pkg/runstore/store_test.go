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

package runstore

import (
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
	"github.com/matrixorigin/trainlog/pkg/livelog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSnapshot(t *testing.T, seed float64) *livelog.Snapshot {
	t.Helper()
	lg := livelog.NewLogger()
	if err := lg.RecordBatch(livelog.GroupTrain, map[string]float64{"loss": seed, "accuracy": seed / 2}, 1); err != nil {
		t.Fatal(err)
	}
	if err := lg.RecordBatch(livelog.GroupTrain, map[string]float64{"loss": seed + 1}, 2); err != nil {
		t.Fatal(err)
	}
	lg.CloseEpoch(livelog.GroupTrain)
	if err := lg.RecordBatch(livelog.GroupTest, map[string]float64{"loss": seed * 3}, 1); err != nil {
		t.Fatal(err)
	}
	return lg.Snapshot()
}

func TestStore_PutGet(t *testing.T) {
	convey.Convey("put then get roundtrips the snapshot", t, func() {
		s := openTestStore(t)
		want := sampleSnapshot(t, 0.5)

		convey.So(s.Put("mnist", want), convey.ShouldBeNil)
		got, err := s.Get("mnist")
		convey.So(err, convey.ShouldBeNil)
		convey.So(want.Equal(got), convey.ShouldBeTrue)

		// put overwrites the latest state
		next := sampleSnapshot(t, 7)
		convey.So(s.Put("mnist", next), convey.ShouldBeNil)
		got, err = s.Get("mnist")
		convey.So(err, convey.ShouldBeNil)
		convey.So(next.Equal(got), convey.ShouldBeTrue)

		// a run never written is not found
		_, err = s.Get("imagenet")
		convey.So(moerr.IsMoErrCode(err, moerr.ErrRunNotFound), convey.ShouldBeTrue)
	})
}

func TestStore_Runs(t *testing.T) {
	convey.Convey("runs come back in key order", t, func() {
		s := openTestStore(t)
		runs, err := s.Runs()
		convey.So(err, convey.ShouldBeNil)
		convey.So(runs, convey.ShouldBeEmpty)

		snap := sampleSnapshot(t, 1)
		for _, run := range []string{"mnist", "cifar", "imagenet"} {
			convey.So(s.Put(run, snap), convey.ShouldBeNil)
		}
		runs, err = s.Runs()
		convey.So(err, convey.ShouldBeNil)
		convey.So(runs, convey.ShouldResemble, []string{"cifar", "imagenet", "mnist"})
	})
}

func TestStore_Checkpoints(t *testing.T) {
	convey.Convey("checkpoints accumulate and the latest wins", t, func() {
		s := openTestStore(t)
		first := sampleSnapshot(t, 1)
		second := sampleSnapshot(t, 2)
		third := sampleSnapshot(t, 3)

		seq, err := s.AppendCheckpoint("mnist", first)
		convey.So(err, convey.ShouldBeNil)
		convey.So(seq, convey.ShouldEqual, 1)
		seq, err = s.AppendCheckpoint("mnist", second)
		convey.So(err, convey.ShouldBeNil)
		convey.So(seq, convey.ShouldEqual, 2)
		seq, err = s.AppendCheckpoint("mnist", third)
		convey.So(err, convey.ShouldBeNil)
		convey.So(seq, convey.ShouldEqual, 3)

		seqs, err := s.Checkpoints("mnist")
		convey.So(err, convey.ShouldBeNil)
		convey.So(seqs, convey.ShouldResemble, []uint64{1, 2, 3})

		// appending also refreshed the latest state
		got, err := s.Get("mnist")
		convey.So(err, convey.ShouldBeNil)
		convey.So(third.Equal(got), convey.ShouldBeTrue)

		mid, err := s.GetCheckpoint("mnist", 2)
		convey.So(err, convey.ShouldBeNil)
		convey.So(second.Equal(mid), convey.ShouldBeTrue)

		last, lastSeq, err := s.LatestCheckpoint("mnist")
		convey.So(err, convey.ShouldBeNil)
		convey.So(lastSeq, convey.ShouldEqual, 3)
		convey.So(third.Equal(last), convey.ShouldBeTrue)

		// histories of different runs stay apart even on shared prefixes
		_, err = s.AppendCheckpoint("mnist2", first)
		convey.So(err, convey.ShouldBeNil)
		seqs, err = s.Checkpoints("mnist")
		convey.So(err, convey.ShouldBeNil)
		convey.So(seqs, convey.ShouldResemble, []uint64{1, 2, 3})
	})
}

func TestStore_CheckpointsMissing(t *testing.T) {
	convey.Convey("a run with no history has no checkpoints", t, func() {
		s := openTestStore(t)
		seqs, err := s.Checkpoints("mnist")
		convey.So(err, convey.ShouldBeNil)
		convey.So(seqs, convey.ShouldBeEmpty)

		_, _, err = s.LatestCheckpoint("mnist")
		convey.So(moerr.IsMoErrCode(err, moerr.ErrRunNotFound), convey.ShouldBeTrue)

		_, err = s.GetCheckpoint("mnist", 1)
		convey.So(moerr.IsMoErrCode(err, moerr.ErrRunNotFound), convey.ShouldBeTrue)
	})
}

func TestStore_Delete(t *testing.T) {
	convey.Convey("delete drops the run and its whole history", t, func() {
		s := openTestStore(t)
		snap := sampleSnapshot(t, 4)
		_, err := s.AppendCheckpoint("mnist", snap)
		convey.So(err, convey.ShouldBeNil)
		_, err = s.AppendCheckpoint("mnist", snap)
		convey.So(err, convey.ShouldBeNil)
		convey.So(s.Put("cifar", snap), convey.ShouldBeNil)

		convey.So(s.Delete("mnist"), convey.ShouldBeNil)

		_, err = s.Get("mnist")
		convey.So(moerr.IsMoErrCode(err, moerr.ErrRunNotFound), convey.ShouldBeTrue)
		seqs, err := s.Checkpoints("mnist")
		convey.So(err, convey.ShouldBeNil)
		convey.So(seqs, convey.ShouldBeEmpty)

		// the other run is untouched
		got, err := s.Get("cifar")
		convey.So(err, convey.ShouldBeNil)
		convey.So(snap.Equal(got), convey.ShouldBeTrue)

		// a fresh history restarts at 1
		seq, err := s.AppendCheckpoint("mnist", snap)
		convey.So(err, convey.ShouldBeNil)
		convey.So(seq, convey.ShouldEqual, 1)

		err = s.Delete("never-written")
		convey.So(moerr.IsMoErrCode(err, moerr.ErrRunNotFound), convey.ShouldBeTrue)
	})
}

func TestStore_BadRunName(t *testing.T) {
	convey.Convey("run names must be non-empty and slash free", t, func() {
		s := openTestStore(t)
		snap := sampleSnapshot(t, 1)
		for _, run := range []string{"", "a/b"} {
			err := s.Put(run, snap)
			convey.So(moerr.IsMoErrCode(err, moerr.ErrInvalidInput), convey.ShouldBeTrue)
			_, err = s.AppendCheckpoint(run, snap)
			convey.So(moerr.IsMoErrCode(err, moerr.ErrInvalidInput), convey.ShouldBeTrue)
			err = s.Delete(run)
			convey.So(moerr.IsMoErrCode(err, moerr.ErrInvalidInput), convey.ShouldBeTrue)
		}
	})
}

func TestStore_Closed(t *testing.T) {
	convey.Convey("a closed store refuses everything", t, func() {
		s, err := Open(filepath.Join(t.TempDir(), "runs"))
		convey.So(err, convey.ShouldBeNil)
		convey.So(s.Close(), convey.ShouldBeNil)
		// closing twice is harmless
		convey.So(s.Close(), convey.ShouldBeNil)

		snap := sampleSnapshot(t, 1)
		err = s.Put("mnist", snap)
		convey.So(moerr.IsMoErrCode(err, moerr.ErrStoreClosed), convey.ShouldBeTrue)
		_, err = s.Get("mnist")
		convey.So(moerr.IsMoErrCode(err, moerr.ErrStoreClosed), convey.ShouldBeTrue)
		_, err = s.Runs()
		convey.So(moerr.IsMoErrCode(err, moerr.ErrStoreClosed), convey.ShouldBeTrue)
		_, err = s.AppendCheckpoint("mnist", snap)
		convey.So(moerr.IsMoErrCode(err, moerr.ErrStoreClosed), convey.ShouldBeTrue)
		err = s.Delete("mnist")
		convey.So(moerr.IsMoErrCode(err, moerr.ErrStoreClosed), convey.ShouldBeTrue)
	})
}

func Test_upperBound(t *testing.T) {
	convey.Convey("upperBound covers exactly the key prefix", t, func() {
		convey.So(upperBound([]byte("run/")), convey.ShouldResemble, []byte("run0"))
		convey.So(upperBound([]byte{0x01, 0xff}), convey.ShouldResemble, []byte{0x02})
		convey.So(upperBound([]byte{0xff, 0xff}), convey.ShouldBeNil)
	})
}
