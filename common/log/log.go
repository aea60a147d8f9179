// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger

func init() {
	// setup default logger
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
}

// Logger get current logger
func Logger() *zap.Logger {
	return logger
}

func CloseLogger() {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.FatalLevel)
	var err error
	logger, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}

func AddFlags(flagSet *pflag.FlagSet) {
	flagSet.String("log-path", "", "path of log file")
	flagSet.Int("log-max-size", 100, "maximum size in megabytes of the log file")
	flagSet.Int("log-max-age", 0, "maximum number of days to retain old log files")
	flagSet.Int("log-max-backups", 0, "maximum number of old log files to retain")
}

// Options of a command logger. Logs go to stderr so that stdout only carries
// command output such as result tables.
type Options struct {
	Debug      bool
	Path       string // rotated log file, disabled if empty
	MaxSize    int
	MaxAge     int
	MaxBackups int
}

// OptionsFromFlags reads options from flags registered by AddFlags.
func OptionsFromFlags(flagSet *pflag.FlagSet, debug bool) Options {
	opts := Options{Debug: debug}
	opts.Path, _ = flagSet.GetString("log-path")
	opts.MaxSize, _ = flagSet.GetInt("log-max-size")
	opts.MaxAge, _ = flagSet.GetInt("log-max-age")
	opts.MaxBackups, _ = flagSet.GetInt("log-max-backups")
	return opts
}

// NewLogger creates a console logger at debug level in debug mode, otherwise a
// JSON logger at info level.
func NewLogger(opts Options) *zap.Logger {
	var (
		cfg     zapcore.EncoderConfig
		encoder zapcore.Encoder
		level   zapcore.Level
	)
	if opts.Debug {
		cfg = zap.NewDevelopmentEncoderConfig()
		level = zap.DebugLevel
	} else {
		cfg = zap.NewProductionEncoderConfig()
		level = zap.InfoLevel
	}
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999999")
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	if opts.Debug {
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		encoder = zapcore.NewJSONEncoder(cfg)
	}
	writers := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if opts.Path != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
		}))
	}
	return zap.New(zapcore.NewCore(encoder, zap.CombineWriteSyncers(writers...), level))
}

// SetLogger replaces the package logger by one configured from flags.
func SetLogger(flagSet *pflag.FlagSet, debug bool) {
	logger = NewLogger(OptionsFromFlags(flagSet, debug))
}
