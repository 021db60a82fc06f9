package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/audiodevice"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/config"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/live"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/metrics"
	"github.com/jinukuntlaakhilakumargoud-web/english-tutor/transcript"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults apply when empty)")
	flag.Parse()

	// Best effort: a missing .env just means the key is already exported.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)
	slog.Info("starting english tutor", "version", version, "commit", commit,
		"provider", cfg.Session.Provider)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		go serveMetrics(cfg.Metrics.Address)
	}

	bridge := audiodevice.New(audiodevice.Config{
		CaptureRate:  cfg.Audio.CaptureRate,
		PlaybackRate: cfg.Audio.PlaybackRate,
		FrameSize:    cfg.Audio.FrameSize,
	})

	client, err := live.NewClient(live.Options{
		Provider:          cfg.Session.Provider,
		APIKey:            os.Getenv(cfg.Session.APIKeyEnv()),
		Endpoint:          cfg.Session.Endpoint,
		Model:             cfg.Session.Model,
		Voice:             cfg.Session.Voice,
		SystemInstruction: cfg.Session.SystemInstruction,
		Device:            bridge,
		Metrics:           m,
	})
	if err != nil {
		slog.Error("create client", "error", err)
		os.Exit(1)
	}

	levels := make(chan float32, 8)
	bridge.OnLevel(func(level float32) {
		select {
		case levels <- level:
		default:
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		slog.Error("connect", "error", err)
		os.Exit(1)
	}
	fmt.Println("Connecting... speak when the session is established. Ctrl-C to quit.")

	run(ctx, client, levels)

	client.Disconnect()
	slog.Info("session closed")
}

// run renders transcript turns, the microphone level and state changes
// until interrupted or the session ends.
func run(ctx context.Context, client *live.Client, levels <-chan float32) {
	var lastLine int
	var turnLive bool
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case s := <-client.States():
			fmt.Printf("\r%s\r", strings.Repeat(" ", lastLine))
			lastLine = 0
			turnLive = false
			fmt.Printf("-- %s --\n", s)
			if s == live.StateDisconnected || s == live.StateError {
				return
			}
		case err := <-client.Errors():
			fmt.Printf("\r%s\r", strings.Repeat(" ", lastLine))
			lastLine = 0
			turnLive = false
			fmt.Printf("!! %v\n", err)
		case turn := <-client.Turns():
			lastLine = render(turn, lastLine)
			turnLive = !turn.Complete
		case level := <-levels:
			// The meter shares the in-progress line; transcript wins.
			if !turnLive {
				lastLine = renderLevel(level, lastLine)
			}
		}
	}
}

// render prints a turn, overwriting the previous in-progress line and
// committing it with a newline once the turn is complete.
func render(turn transcript.Turn, lastLine int) int {
	speaker := "You"
	if turn.Sender == transcript.SenderModel {
		speaker = "Lingua"
	}
	line := fmt.Sprintf("%s: %s", speaker, turn.Text)

	pad := ""
	if n := lastLine - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	if turn.Complete {
		fmt.Printf("\r%s%s\n", line, pad)
		return 0
	}
	fmt.Printf("\r%s%s", line, pad)
	return len(line)
}

// renderLevel draws the smoothed microphone level as a fixed-width bar,
// overwriting the current line.
func renderLevel(level float32, lastLine int) int {
	const width = 20
	n := int(level * width)
	if n > width {
		n = width
	}
	if n < 0 {
		n = 0
	}
	line := "mic |" + strings.Repeat("#", n) + strings.Repeat(" ", width-n) + "|"

	pad := ""
	if d := lastLine - len(line); d > 0 {
		pad = strings.Repeat(" ", d)
	}
	fmt.Printf("\r%s%s", line, pad)
	return len(line)
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics listening", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server", "error", err)
	}
}
