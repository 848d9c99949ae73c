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

package logutil

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "console"
	// defaultLogMaxSize is the max size of one log file, in MB.
	defaultLogMaxSize = 512

	logTimeLayout = "2006/01/02 15:04:05.000000 -0700"
)

// LogConfig defines the logging destination and verbosity.
type LogConfig struct {
	// Level is one of debug, info, warn, error, dpanic, panic, fatal.
	Level string `toml:"level"`
	// Format is one of console, json.
	Format string `toml:"format"`
	// Filename routes the log to a rotated file instead of stdout.
	Filename string `toml:"filename"`
	// MaxSize is the max size of one log file, in MB.
	MaxSize int `toml:"max-size"`
	// MaxDays is the max day the rotated files are kept.
	MaxDays int `toml:"max-days"`
	// MaxBackups is the max count of rotated files kept.
	MaxBackups int `toml:"max-backups"`
	// StacktraceLevel is the level that triggers a stacktrace field.
	StacktraceLevel string `toml:"stacktrace-level"`
}

// Adjust fills zero fields with defaults.
func (cfg *LogConfig) Adjust() {
	if len(cfg.Level) == 0 {
		cfg.Level = defaultLogLevel
	}
	if len(cfg.Format) == 0 {
		cfg.Format = defaultLogFormat
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultLogMaxSize
	}
	if len(cfg.StacktraceLevel) == 0 {
		cfg.StacktraceLevel = zapcore.FatalLevel.String()
	}
}

// SetupMOLogger builds the global logger from conf. Must be called once,
// early; callers that skip it get a console info logger.
func SetupMOLogger(conf *LogConfig) {
	conf.Adjust()
	logger := conf.getLogger()
	replaceGlobalLogger(logger)
	Info("trainlog logger init",
		zap.String("level", conf.Level),
		zap.String("format", conf.Format),
		zap.String("filename", conf.Filename))
}

// ZapSink pairs one encoder with one destination.
type ZapSink struct {
	enc zapcore.Encoder
	out zapcore.WriteSyncer
}

func (cfg *LogConfig) getLogger() *zap.Logger {
	var cores []zapcore.Core
	level := cfg.getLevel()
	for _, sink := range cfg.getSinks() {
		cores = append(cores, zapcore.NewCore(sink.enc, sink.out, level))
	}
	return zap.New(zapcore.NewTee(cores...), cfg.getOptions()...)
}

func (cfg *LogConfig) getSinks() []ZapSink {
	return []ZapSink{
		{cfg.getEncoder(), cfg.getSyncer()},
	}
}

func (cfg *LogConfig) getLevel() zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}
	return level
}

func (cfg *LogConfig) getOptions() []zap.Option {
	return []zap.Option{zap.AddStacktrace(cfg.getStacktraceLevel()), zap.AddCaller()}
}

func (cfg *LogConfig) getStacktraceLevel() zapcore.Level {
	level := zapcore.FatalLevel
	if len(cfg.StacktraceLevel) > 0 {
		var parsed zapcore.Level
		if err := parsed.UnmarshalText([]byte(cfg.StacktraceLevel)); err == nil {
			level = parsed
		}
	}
	return level
}

func (cfg *LogConfig) getSyncer() zapcore.WriteSyncer {
	if len(cfg.Filename) > 0 {
		if stat, err := os.Stat(cfg.Filename); err == nil && stat.IsDir() {
			panic("log file can't be a directory")
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxAge:     cfg.MaxDays,
			MaxBackups: cfg.MaxBackups,
			LocalTime:  true,
		})
	}
	return getConsoleSyncer()
}

func getConsoleSyncer() zapcore.WriteSyncer {
	return zapcore.Lock(os.Stdout)
}

func (cfg *LogConfig) getEncoder() zapcore.Encoder {
	return getLoggerEncoder(cfg.Format)
}

func getLoggerEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "name",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(logTimeLayout),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		return zapcore.NewConsoleEncoder(encoderConfig)
	default:
		panic(moerr.NewInternalError(context.TODO(), "unsupported log format: %s", format))
	}
}
