package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger returns a development logger; with logFile it also writes JSON lines to a rotated file.
func newLogger(logFile string) (*zap.Logger, error) {
	if logFile == "" {
		return zap.NewDevelopment()
	}

	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		zapcore.DebugLevel,
	)
	file := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		}),
		zapcore.InfoLevel,
	)
	return zap.New(zapcore.NewTee(console, file), zap.AddCaller()), nil
}
