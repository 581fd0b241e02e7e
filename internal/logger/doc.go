// Package logger provides structured logging functionality for the ytmux project.
//
// Features:
//   - Multiple log levels (TRACE, DEBUG, INFO, WARN, ERROR)
//   - Component-based filtering
//   - Multiple output formats (text, JSON, color)
//   - Thread-safe operations
//   - Configuration from a JSON file and YTMUX_LOG_* environment variables
//
// Usage:
//
//	log := logger.WithComponent(logger.ComponentDownloader)
//	log.Info("chunk written", logger.Fields{
//		"stream": "video",
//		"bytes":  10485760,
//	})
//
//	cfg := logger.DefaultConfig()
//	cfg.Level = logger.DEBUG
//	cfg.Format = logger.FormatJSON
//	logger.SetGlobalLogger(logger.New(cfg))
//
// Components:
//   - ComponentApp: pipeline orchestration
//   - ComponentInnerTube: player endpoint requests
//   - ComponentFormat: stream format selection
//   - ComponentChallenge: player script scraping and n-transform evaluation
//   - ComponentDownloader: ranged chunk transfers
//   - ComponentMuxer: ffmpeg invocation
//   - ComponentClient: HTTP client setup
package logger
