package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"paritystore/internal/directory"
)

func main() {
	addr := flag.String("listen", ":5000", "address to listen on")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logrus.New()
	lvl, err := logrus.ParseLevel(*level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(lvl)

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := directory.NewServer(log).Serve(ctx, lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
}
