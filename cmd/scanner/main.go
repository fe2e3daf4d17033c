package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"qrrelay/internal/config"
	"qrrelay/internal/logger"
	"qrrelay/internal/service/capture"
	"qrrelay/internal/service/gate"
	"qrrelay/internal/service/relay"
	"qrrelay/internal/service/scanner"
	"qrrelay/internal/service/vision"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadScanner()

	var filePath string
	flagSet := pflag.NewFlagSet("scanner", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.ServerURL, "url", cfg.ServerURL, "relay server websocket URL")
	flagSet.IntVar(&cfg.RegionX, "x", cfg.RegionX, "capture region left edge")
	flagSet.IntVar(&cfg.RegionY, "y", cfg.RegionY, "capture region top edge")
	flagSet.IntVarP(&cfg.RegionWidth, "width", "W", cfg.RegionWidth, "capture region width")
	flagSet.IntVarP(&cfg.RegionHeight, "height", "H", cfg.RegionHeight, "capture region height")
	flagSet.DurationVar(&cfg.ScanInterval, "interval", cfg.ScanInterval, "scan cadence")
	flagSet.DurationVar(&cfg.ErrorBackoff, "backoff", cfg.ErrorBackoff, "wait after a capture error")
	flagSet.DurationVar(&cfg.Cooldown, "cooldown", cfg.Cooldown, "minimum time before an unchanged payload is sent again")
	flagSet.StringVar(&cfg.WeChatModelDir, "wechat-models", cfg.WeChatModelDir, "directory with the WeChat detector and super-resolution models")
	flagSet.StringVar(&cfg.BandsFile, "bands", cfg.BandsFile, "YAML file with the HSV colour bands")
	flagSet.StringVar(&cfg.LogDirectory, "log-dir", cfg.LogDirectory, "directory for log files")
	flagSet.StringVar(&filePath, "file", "", "scan a saved screenshot instead of the screen")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	region := capture.Region{X: cfg.RegionX, Y: cfg.RegionY, Width: cfg.RegionWidth, Height: cfg.RegionHeight}
	var source capture.FrameSource
	if filePath != "" {
		var crop *capture.Region
		if flagSet.Changed("width") || flagSet.Changed("height") {
			crop = &region
		}
		source = capture.NewFileSource(filePath, crop)
	} else {
		if err := region.Validate(); err != nil {
			return err
		}
		source = capture.NewScreenSource(region)
	}

	bands, err := config.LoadBands(cfg.BandsFile)
	if err != nil {
		return err
	}

	appLogger := logger.NewLogger(cfg.LogDirectory)
	defer appLogger.Close()

	if screen, ok := source.(*capture.ScreenSource); ok {
		r := screen.Region()
		appLogger.Info("Capturing screen region %dx%d at (%d,%d)", r.Width, r.Height, r.X, r.Y)
	} else {
		appLogger.Info("Scanning file %s", filePath)
	}

	decoders := vision.NewRegistry(cfg.WeChatModelDir, appLogger)
	defer decoders.Close()
	appLogger.Info("Decoders: %s", strings.Join(decoders.Names(), ", "))

	cascade := vision.NewCascade(decoders, vision.NewEnhancer(bands.Enhancer, appLogger), bands.ColorPass, appLogger)
	client := relay.NewClient(cfg.ServerURL, appLogger)
	defer client.Disconnect()

	worker := scanner.NewWorker(source, cascade, gate.New(cfg.Cooldown), client,
		scanner.Options{Interval: cfg.ScanInterval, Backoff: cfg.ErrorBackoff}, appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		appLogger.Warning("Not connected to %s: %v (type 'c' to retry)", client.URL(), err)
	}

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	console(ctx, stop, client, worker, cfg.StatusInterval)

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// console drains worker status and handles the manual commands until ctx ends.
func console(ctx context.Context, stop context.CancelFunc, client *relay.Client, worker *scanner.Worker, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	commands := make(chan string)
	go func() {
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
			commands <- strings.TrimSpace(in.Text())
		}
	}()

	fmt.Println("Commands: c = connect, d = disconnect, q = quit")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	connected := client.Connected()
	for {
		select {
		case <-ctx.Done():
			return

		case status := <-worker.Status():
			printStatus(status)

		case <-ticker.C:
			// Tylko raport, ponowne połączenie jest ręczne
			if now := client.Connected(); now != connected {
				connected = now
				if connected {
					fmt.Printf("[relay] connected to %s\n", client.URL())
				} else {
					fmt.Printf("[relay] disconnected from %s\n", client.URL())
				}
			}

		case cmd := <-commands:
			switch cmd {
			case "c":
				if err := client.Connect(ctx); err != nil {
					fmt.Printf("[relay] connect failed: %v\n", err)
				}
			case "d":
				client.Disconnect()
			case "q":
				stop()
				return
			case "":
			default:
				fmt.Printf("unknown command %q\n", cmd)
			}
		}
	}
}

func printStatus(s scanner.Status) {
	line := fmt.Sprintf("[%s] %s", s.At.Format("15:04:05"), s.State)
	if s.Payload != "" {
		line += fmt.Sprintf(": %s (%s)", s.Payload, s.Method)
	}
	if s.Err != nil {
		line += fmt.Sprintf(": %v", s.Err)
	}
	fmt.Println(line)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Screen QR scanner, relays decoded codes to the relay server.

Captures the configured screen region (or a saved screenshot with --file),
decodes QR codes and sends new payloads over the websocket connection.
Flags override the environment (.env) settings.

Usage:
  scanner [flags]

Flags:
%s`, flagSet.FlagUsages())
}
