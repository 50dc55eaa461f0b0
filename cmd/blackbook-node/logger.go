package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logConfig struct {
	Format     string `long:"log-format" env:"BLACKBOOK_LOG_FORMAT" choice:"console" choice:"json" default:"console" description:"log encoding"`
	Level      string `long:"log-level" env:"BLACKBOOK_LOG_LEVEL" default:"info" description:"minimum log level"`
	File       string `long:"log-file" env:"BLACKBOOK_LOG_FILE" description:"also write logs to this file with rotation"`
	MaxSizeMB  int    `long:"log-max-size" env:"BLACKBOOK_LOG_MAX_SIZE" default:"50" description:"rotate the log file after this many megabytes"`
	MaxBackups int    `long:"log-max-backups" env:"BLACKBOOK_LOG_MAX_BACKUPS" default:"3" description:"rotated files to keep"`
	MaxAgeDays int    `long:"log-max-age" env:"BLACKBOOK_LOG_MAX_AGE" default:"28" description:"days to keep rotated files"`
}

func newLogger(cfg logConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	if cfg.File == "" {
		return logger, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotated := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), rotated, level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}
