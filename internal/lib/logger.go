package lib

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gitlab.com/TitanInd/fleet-metrics/internal/interfaces"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeLayout = "2006-01-02T15:04:05"

type LoggerConfig struct {
	Level      string
	Color      bool
	IsProd     bool
	JSON       bool
	FolderPath string
}

func NewLogger(cfg LoggerConfig) (*Logger, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: log.Sugar()}, nil
}

// NewTestLogger logs only to stdout
func NewTestLogger() *Logger {
	log, _ := newLogger(LoggerConfig{Level: "debug"})
	return &Logger{SugaredLogger: log.Sugar()}
}

func newLogger(cfg LoggerConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	core := newConsoleCore(level, cfg)
	if cfg.FolderPath != "" {
		fileCore, err := newFileCore(zapcore.DebugLevel, cfg)
		if err != nil {
			return nil, err
		}
		core = zapcore.NewTee(fileCore, core)
	}

	opts := []zap.Option{
		zap.AddStacktrace(zap.ErrorLevel),
	}
	if !cfg.IsProd {
		opts = append(opts, zap.Development())
	}

	return zap.New(core, opts...), nil
}

func newConsoleCore(level zapcore.Level, cfg LoggerConfig) zapcore.Core {
	encoderCfg := newEncoderCfg(cfg.IsProd, cfg.Color && !cfg.JSON)
	return zapcore.NewCore(newEncoder(encoderCfg, cfg.JSON), zapcore.AddSync(os.Stdout), level)
}

func newEncoderCfg(isProd bool, color bool) zapcore.EncoderConfig {
	var encoderCfg zapcore.EncoderConfig
	if isProd {
		encoderCfg = zap.NewProductionEncoderConfig()
	} else {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	}

	if color {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return encoderCfg
}

func newEncoder(encoderCfg zapcore.EncoderConfig, isJSON bool) zapcore.Encoder {
	if isJSON {
		return zapcore.NewJSONEncoder(encoderCfg)
	}
	return zapcore.NewConsoleEncoder(encoderCfg)
}

func newFileCore(level zapcore.Level, cfg LoggerConfig) (zapcore.Core, error) {
	encoderCfg := newEncoderCfg(cfg.IsProd, false)
	if !cfg.JSON {
		encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	}

	dir := filepath.Join(".", cfg.FolderPath)
	err := os.MkdirAll(dir, os.ModePerm)
	if err != nil {
		return nil, err
	}

	// colons from the timestamp are not allowed in filenames on every platform
	name := SanitizeFilename(fmt.Sprintf("fleet-metrics-%s.log", time.Now().Format(timeLayout)))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}

	return zapcore.NewCore(newEncoder(encoderCfg, cfg.JSON), zapcore.AddSync(file), level), nil
}

type Logger struct {
	*zap.SugaredLogger
}

func (l *Logger) Named(name string) interfaces.ILogger {
	return &Logger{l.SugaredLogger.Named(name)}
}

func (l *Logger) With(args ...interface{}) interfaces.ILogger {
	return &Logger{l.SugaredLogger.With(args...)}
}
