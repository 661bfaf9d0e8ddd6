package common

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapLoggerOptions configures NewZapLogger.
type ZapLoggerOptions struct {
	// LogFile enables a rotated log file. Without it entries go to stdout.
	LogFile string
	// MaxSize, in megabytes, triggers rotation of LogFile.
	MaxSize int
	// MaxBackups and MaxAge (days) bound the rotated files kept; zero keeps all.
	MaxBackups int
	MaxAge     int
	Compress   bool

	// DebugLevel includes frame dumps; otherwise entries start at Info.
	DebugLevel bool
	// Console copies file entries to stdout.
	Console bool
}

func (o ZapLoggerOptions) writer() zapcore.WriteSyncer {
	if o.LogFile == "" {
		return zapcore.Lock(zapcore.AddSync(os.Stdout))
	}
	var w io.Writer = &lumberjack.Logger{
		Filename:   o.LogFile,
		MaxSize:    o.MaxSize,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAge,
		Compress:   o.Compress,
	}
	if o.Console {
		return zapcore.NewMultiWriteSyncer(zapcore.Lock(zapcore.AddSync(os.Stdout)), zapcore.AddSync(w))
	}
	return zapcore.AddSync(w)
}

func (o ZapLoggerOptions) level() zapcore.Level {
	if o.DebugLevel {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// NewZapLogger returns a JSON Logger built on zap, with ISO8601 timestamps.
func NewZapLogger(opts ZapLoggerOptions) Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), opts.writer(), opts.level())
	return NewZapLoggerFrom(zap.New(core))
}

// NewZapLoggerFrom adapts an existing zap logger.
func NewZapLoggerFrom(l *zap.Logger) Logger {
	return &zapAdapter{s: l.Sugar()}
}

type zapAdapter struct {
	s *zap.SugaredLogger
}

func (z *zapAdapter) Debug(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z *zapAdapter) Info(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z *zapAdapter) Warn(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z *zapAdapter) Error(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }

// Sync flushes a Logger returned by NewZapLogger. Other loggers are left alone.
func Sync(l Logger) error {
	if z, ok := l.(*zapAdapter); ok {
		return z.s.Sync()
	}
	return nil
}
