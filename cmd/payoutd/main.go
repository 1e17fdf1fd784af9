package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/smartcontractkit/automation-prize-payout/pkg/config"
	"github.com/smartcontractkit/automation-prize-payout/pkg/service"
)

var (
	configFile = flag.StringP("config", "c", "./payout.yaml", "file path to read service config from")
	listen     = flag.StringP("listen", "l", "", "http listen address; overrides the config file")
	verbose    = flag.BoolP("verbose", "v", false, "log every keeper poll to stderr as well as the audit log")
)

func main() {
	// ----- collect run parameters
	flag.Parse()

	procLog := log.New(log.Writer(), "[payoutd-startup] ", log.LstdFlags)

	// ----- read service config
	procLog.Println("loading service config ...")
	conf, err := config.Load(*configFile)
	if err != nil {
		procLog.Printf("failed to load config: %s", err)
		os.Exit(1)
	}

	if *listen != "" {
		conf.HTTP.Listen = *listen
	}

	ctx, cancel := context.WithCancel(context.Background())

	// ----- wire contract dependencies
	procLog.Println("wiring payout contract ...")
	d, err := build(ctx, conf, *verbose)
	if err != nil {
		procLog.Printf("failed to build service: %s", err)
		cancel()
		os.Exit(1)
	}
	defer d.close()

	recoverer := service.NewRecoverer(d.ticker, conf.Keeper.RestartWait.Value(), d.logger)

	server := newServer(conf, d.handler(conf))

	var wg sync.WaitGroup
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	if err := recoverer.Start(ctx); err != nil {
		procLog.Printf("failed to start keeper: %s", err)
		cancel()
		os.Exit(1)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		procLog.Printf("serving http on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			procLog.Printf("http server stopped: %s", err)

			select {
			case c <- syscall.SIGTERM:
			default:
			}
		}
	}()

	<-c
	procLog.Println("shutting down ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = server.Shutdown(shutdownCtx)

	if err := recoverer.Close(); err != nil && !errors.Is(err, service.ErrServiceNotRunning) {
		procLog.Printf("keeper stopped with error: %s", err)
	}

	cancel()
	wg.Wait()
}
