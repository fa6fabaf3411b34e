package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"paritystore/internal/config"
	"paritystore/internal/console"
	"paritystore/internal/directory"
	"paritystore/internal/node"
	"paritystore/internal/peer"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	logLevel := flag.String("log-level", "", "log level (overrides the config file)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s [flags] <directoryHost> <directoryPort> <listenPort> [seedFile]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logrus.New()

	cfg, err := loadConfig(*configPath, *logLevel, flag.Args())
	if err != nil {
		flag.Usage()
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorf("Node stopped: %v", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(path, level string, args []string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyArgs(args); err != nil {
		return cfg, err
	}
	if level != "" {
		cfg.LogLevel = level
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	var registry peer.Registry
	if peers := cfg.StaticPeers(); peers != nil {
		registry = peer.NewStaticRegistry(peers)
	} else {
		dir, err := directory.DialTimeout(cfg.DirectoryAddr(), logger)
		if err != nil {
			return err
		}
		defer dir.Close()
		registry = dir
	}

	dialer := peer.NewClientManager()
	defer dialer.Close()

	n := node.NewNode(cfg, registry, dialer, logger.WithField("node", fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-n.Ready():
			if err := console.New(n.Store(), logger).Run(ctx, os.Stdin); err != nil {
				logger.Warnf("Console stopped: %v", err)
			}
		case <-ctx.Done():
		}
	}()

	err := n.Run(ctx)
	if errors.Is(err, directory.ErrRegistrationRejected) {
		return fmt.Errorf("another node is registered on this address: %w", err)
	}
	return err
}
