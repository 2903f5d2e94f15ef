// Package logger provides a structured logging interface for the downloader.
//
// It wraps the zerolog library to provide a clean API with support for:
// - Multiple log levels (Debug, Info, Warn, Error, Fatal)
// - Structured logging with fields
// - Pretty console output
// - Optional file output alongside the console
// - Global logger instance for easy access
//
// Basic Usage:
//
//	import "github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
//
//	cfg := &config.LoggingConfig{
//	    Level: "info",
//	    File:  "kemono-dl.log",
//	}
//	err := logger.Initialize(cfg)
//
//	logger.Info("Session started")
//	logger.WithField("post_id", "123").Info("Processing post")
//	logger.WithError(err).Error("Failed to download file")
package logger
