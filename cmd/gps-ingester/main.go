package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/quikmile/gps-ingester/internal/config"
	gpshttp "github.com/quikmile/gps-ingester/internal/http"
	"github.com/quikmile/gps-ingester/internal/metrics"
	"github.com/quikmile/gps-ingester/internal/protocol"
	"github.com/quikmile/gps-ingester/internal/publish"
	"github.com/quikmile/gps-ingester/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "decode":
		runDecode()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: gps-ingester <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve               Start the ingest service")
	fmt.Println("  decode <protocol>   Decode hex frames from stdin, one per line")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting gps-ingester",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("http_listen", cfg.Service.HTTPListen),
		zap.Strings("protocols", cfg.Server.Protocols),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build TLS and SASL from config.
	tlsCfg, err := cfg.Kafka.BuildTLSConfig()
	if err != nil {
		logger.Fatal("failed to build TLS config", zap.Error(err))
	}
	saslMech := cfg.Kafka.BuildSASLMechanism()

	publisher, err := publish.New(cfg.Kafka.Brokers, cfg.Kafka.ClientID, tlsCfg, saslMech,
		cfg.Kafka.QueueSize, logger.Named("publish"))
	if err != nil {
		logger.Fatal("failed to create kafka producer", zap.Error(err))
	}
	defer publisher.Close()

	var protos []protocol.Proto
	for _, name := range cfg.Server.Protocols {
		p, _ := protocol.Lookup(name)
		protos = append(protos, p)
	}
	sup := server.NewSupervisor(protos, cfg.Server.BindAddress, publisher,
		cfg.Server.ReadBufferBytes, logger.Named("server"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); publisher.Run(ctx) }()
	go func() { defer wg.Done(); sup.Run(ctx) }()

	httpServer := gpshttp.NewServer(cfg.Service.HTTPListen, publisher, sup, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	logger.Info("all listeners and HTTP server started")

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown.
	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting HTTP traffic first.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel context to stop listeners and drain the publisher.
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all listeners stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, some sessions may not have finished")
	}

	logger.Info("gps-ingester stopped")
}

// runDecode is the offline debugging aid: it feeds hex frames from
// stdin through one protocol's codec and prints the decoded packets.
func runDecode() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: gps-ingester decode <protocol>")
		os.Exit(1)
	}
	proto, ok := protocol.Lookup(os.Args[2])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown protocol: %s\n", os.Args[2])
		os.Exit(1)
	}

	codec := proto.New()
	scanner := bufio.NewScanner(os.Stdin)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(strings.ReplaceAll(scanner.Text(), " ", ""))
		if line == "" {
			continue
		}

		buf, err := hex.DecodeString(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: bad hex: %v\n", lineNum, err)
			continue
		}

		pkt, err := codec.Decode(buf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: decode: %v\n", lineNum, err)
			continue
		}

		out, _ := json.MarshalIndent(pkt, "", "  ")
		fmt.Printf("=== frame %d (%s, kind=%s) ===\n%s\n", lineNum, proto.Name, pkt.Kind, out)
		for _, ack := range pkt.Acks {
			fmt.Printf("ack (delay %s): %s\n", ack.Delay, hex.EncodeToString(ack.Data))
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "reading stdin: %v\n", err)
		os.Exit(1)
	}
}
