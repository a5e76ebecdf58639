// FILE: src/cmd/logship/logger_test.go
package main

import (
	"testing"

	"logship/src/internal/config"

	"github.com/lixenwraith/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerConfigArgs(t *testing.T) {
	testCases := []struct {
		name     string
		cfg      *config.LogConfig
		expected []string
	}{
		{
			"None",
			&config.LogConfig{Output: "none", Level: "info"},
			[]string{"level=0", "disable_file=true", "enable_console=false"},
		},
		{
			"Stdout",
			&config.LogConfig{Output: "stdout", Level: "debug"},
			[]string{"level=-4", "disable_file=true", "enable_console=true", "console_target=stdout"},
		},
		{
			"Stderr",
			&config.LogConfig{Output: "stderr", Level: "warn"},
			[]string{"level=4", "disable_file=true", "enable_console=true", "console_target=stderr"},
		},
		{
			"File",
			&config.LogConfig{
				Output: "file",
				Level:  "error",
				File: &config.LogFileConfig{
					Directory:      "/var/log/logship",
					Name:           "logship",
					MaxSizeMB:      100,
					MaxTotalSizeMB: 1000,
				},
			},
			[]string{
				"level=8", "enable_console=false",
				"directory=/var/log/logship", "name=logship",
				"max_size_mb=100", "max_total_size_mb=1000",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			args, err := loggerConfigArgs(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, args)
		})
	}

	t.Run("BadOutput", func(t *testing.T) {
		_, err := loggerConfigArgs(&config.LogConfig{Output: "syslog", Level: "info"})
		assert.Error(t, err)
	})

	t.Run("BadLevel", func(t *testing.T) {
		_, err := loggerConfigArgs(&config.LogConfig{Output: "stderr", Level: "trace"})
		assert.Error(t, err)
	})
}

// The emitted overrides must be accepted verbatim by the logger.
func TestLoggerConfigArgs_AcceptedByLogger(t *testing.T) {
	args, err := loggerConfigArgs(config.DefaultLogConfig())
	require.NoError(t, err)

	l := log.NewLogger()
	require.NoError(t, l.ApplyConfigString(args...))
	require.NoError(t, l.Start())
	defer l.Shutdown()
}

func TestParseLogLevel(t *testing.T) {
	for name, want := range map[string]int64{
		"debug": log.LevelDebug,
		"info":  log.LevelInfo,
		"warn":  log.LevelWarn,
		"error": log.LevelError,
	} {
		got, err := parseLogLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := parseLogLevel("verbose")
	assert.Error(t, err)
}
