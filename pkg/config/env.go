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

package config

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var (
	configCheckpointInterval int64 = EnvOrDefaultInt[int64]("TRAINLOG_CHECKPOINT_INTERVAL_MS", defaultCheckpointInterval)
	configCheckpointCompress int32 = EnvOrDefaultBool("TRAINLOG_CHECKPOINT_COMPRESS", 0)
)

func EnvOrDefaultBool(key string, defaultValue int32) int32 {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	switch strings.ToLower(val) {
	case "0", "false", "f":
		return 0
	case "1", "true", "t":
		return 1
	default:
		return defaultValue
	}
}

func EnvOrDefaultInt[T int32 | int64](key string, defaultValue T) T {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	var size int
	switch any(&defaultValue).(type) {
	case *int32:
		size = 32
	case *int64:
		size = 64
	}
	i, err := strconv.ParseInt(val, 10, size)
	if err != nil {
		return defaultValue
	}
	return T(i)
}

func GetCheckpointInterval() time.Duration {
	return time.Duration(atomic.LoadInt64(&configCheckpointInterval)) * time.Millisecond
}

func GetCheckpointCompress() bool {
	return atomic.LoadInt32(&configCheckpointCompress) != 0
}

// for tests

func SetCheckpointInterval(new time.Duration) time.Duration {
	return time.Duration(atomic.SwapInt64(&configCheckpointInterval, int64(new/time.Millisecond))) * time.Millisecond
}

func SetCheckpointCompress(new bool) bool {
	var val int32 = 0
	if new {
		val = 1
	}
	return atomic.SwapInt32(&configCheckpointCompress, val) != 0
}
