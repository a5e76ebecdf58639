// FILE: src/cmd/logship/main.go
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logship/src/internal/client"
	"logship/src/internal/config"
	"logship/src/internal/version"

	"github.com/lixenwraith/log"
)

var logger *log.Logger

func main() {
	os.Exit(run())
}

func run() int {
	if err := parseFlags(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *showVersion {
		fmt.Printf("logship %s\n", version.String())
		return 0
	}

	cfg, err := config.LoadWithCLI(flagArgs())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if err := initializeLogger(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Logger initialization failed: %v\n", err)
		return 1
	}
	defer logger.Shutdown(2 * time.Second)

	c, err := client.New(cfg, logger)
	if err != nil {
		logger.Error("msg", "Failed to create client", "error", err)
		return 1
	}
	defer c.Close()

	switch {
	case *drain:
		result := c.RetryCachedLogs()
		printJSON(result)
		if result.Failed > 0 {
			return 1
		}
		return 0

	case *showStats:
		printJSON(map[string]any{
			"cache": c.GetCacheStats(),
			"retry": c.GetRetryStats(),
		})
		return 0

	case *clearCache:
		removed := c.ClearCache()
		printJSON(map[string]any{"removed": removed})
		return 0
	}

	return shipStdin(c)
}

// stdinEvent is one JSON line read from standard input.
type stdinEvent struct {
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Level       string          `json:"level"`
	Data        json.RawMessage `json:"data"`
	Timestamp   string          `json:"timestamp"`
}

// shipStdin reads JSON-line events from stdin and delivers each one until
// EOF or a termination signal.
func shipStdin(c *client.Client) int {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines <- line
			}
		}
	}()

	shipped := 0
	for {
		select {
		case sig := <-sigChan:
			logger.Info("msg", "Termination signal received",
				"signal", sig.String(),
				"shipped", shipped)
			return 0

		case line, ok := <-lines:
			if !ok {
				logger.Info("msg", "Input drained", "shipped", shipped)
				return 0
			}

			var ev stdinEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				logger.Warn("msg", "Skipping malformed input line", "error", err)
				continue
			}

			var ts any
			if ev.Timestamp != "" {
				ts = ev.Timestamp
			}
			if err := c.SendLogAt(ev.Type, ev.Category, ev.Subcategory, ev.Level, ev.Data, ts); err != nil {
				logger.Warn("msg", "Delivery failed, event cached if possible", "error", err)
			}
			shipped++
		}
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
