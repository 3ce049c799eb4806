package lib

import "gitlab.com/TitanInd/fleet-metrics/internal/interfaces"

// LoggerMock discards everything, used in tests
type LoggerMock struct{}

func (l *LoggerMock) Debug(args ...interface{})  {}
func (l *LoggerMock) Info(args ...interface{})   {}
func (l *LoggerMock) Warn(args ...interface{})   {}
func (l *LoggerMock) Error(args ...interface{})  {}
func (l *LoggerMock) DPanic(args ...interface{}) {}

func (l *LoggerMock) Debugf(template string, args ...interface{})  {}
func (l *LoggerMock) Infof(template string, args ...interface{})   {}
func (l *LoggerMock) Warnf(template string, args ...interface{})   {}
func (l *LoggerMock) Errorf(template string, args ...interface{})  {}
func (l *LoggerMock) DPanicf(template string, args ...interface{}) {}

func (l *LoggerMock) Debugw(msg string, keysAndValues ...interface{}) {}
func (l *LoggerMock) Infow(msg string, keysAndValues ...interface{})  {}
func (l *LoggerMock) Warnw(msg string, keysAndValues ...interface{})  {}
func (l *LoggerMock) Errorw(msg string, keysAndValues ...interface{}) {}

func (l *LoggerMock) Named(name string) interfaces.ILogger        { return l }
func (l *LoggerMock) With(args ...interface{}) interfaces.ILogger { return l }
func (l *LoggerMock) Sync() error                                 { return nil }
