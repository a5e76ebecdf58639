// FILE: src/cmd/logship/logger.go
package main

import (
	"fmt"
	"strings"

	"logship/src/internal/config"

	"github.com/lixenwraith/log"
)

// initializeLogger sets up the diagnostic logger based on configuration
func initializeLogger(cfg *config.Config) error {
	logger = log.NewLogger()

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = config.DefaultLogConfig()
	}

	configArgs, err := loggerConfigArgs(logCfg)
	if err != nil {
		return err
	}

	if err := logger.ApplyConfigString(configArgs...); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}
	return logger.Start()
}

// loggerConfigArgs translates the logging section into key=value overrides
// for the logger.
func loggerConfigArgs(logCfg *config.LogConfig) ([]string, error) {
	var configArgs []string

	levelValue, err := parseLogLevel(logCfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	configArgs = append(configArgs, fmt.Sprintf("level=%d", levelValue))

	switch logCfg.Output {
	case "none":
		configArgs = append(configArgs, "disable_file=true", "enable_console=false")

	case "stdout":
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_console=true",
			"console_target=stdout")

	case "stderr":
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_console=true",
			"console_target=stderr")

	case "file":
		configArgs = append(configArgs, "enable_console=false")
		configureFileLogging(&configArgs, logCfg)

	case "both":
		configArgs = append(configArgs, "enable_console=true", "console_target=stderr")
		configureFileLogging(&configArgs, logCfg)

	default:
		return nil, fmt.Errorf("invalid log output mode: %s", logCfg.Output)
	}

	return configArgs, nil
}

func configureFileLogging(configArgs *[]string, logCfg *config.LogConfig) {
	file := logCfg.File
	if file == nil {
		return
	}

	*configArgs = append(*configArgs,
		fmt.Sprintf("directory=%s", file.Directory),
		fmt.Sprintf("name=%s", file.Name))

	if file.MaxSizeMB > 0 {
		*configArgs = append(*configArgs, fmt.Sprintf("max_size_mb=%d", file.MaxSizeMB))
	}
	if file.MaxTotalSizeMB > 0 {
		*configArgs = append(*configArgs, fmt.Sprintf("max_total_size_mb=%d", file.MaxTotalSizeMB))
	}
	if file.RetentionHours > 0 {
		*configArgs = append(*configArgs, fmt.Sprintf("retention_period_hrs=%f", file.RetentionHours))
	}
}

func parseLogLevel(level string) (int64, error) {
	switch strings.ToLower(level) {
	case "debug":
		return log.LevelDebug, nil
	case "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}
