package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/Scusemua/go-utils/config"
	"github.com/pkg/errors"

	"github.com/All-less/continuum/internal/ingest"
	"github.com/All-less/continuum/internal/store"
)

// Options is the retraining-trigger core's command-line/YAML configuration,
// following the teacher's config.Options struct-tag idiom (e.g.
// common/jupyter/types.ConnectionInfo).
type Options struct {
	config.Options

	RedisAddr     string `name:"redis_addr" description:"Host:port of the Redis instance backing the persistent store."`
	RedisPassword string `name:"redis_password" description:"Password for the Redis instance, if any."`

	BindIP   string `name:"ip" description:"IP address the Backend RPC Transport binds its ROUTER socket to."`
	BindPort int    `name:"port" description:"Port the Backend RPC Transport binds its ROUTER socket to."`

	DebugMode bool `name:"debug" description:"Enable debug-level logging."`
}

var (
	options      = Options{}
	globalLogger = config.GetLogger("")
	sig          = make(chan os.Signal, 1)
)

func init() {
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)

	options.RedisAddr = "localhost:6379"
	options.BindIP = "*"
	options.BindPort = 5555
}

func validateOptions() {
	flags, err := config.ValidateOptions(&options)
	if errors.Is(err, config.ErrPrintUsage) {
		flags.PrintDefaults()
		os.Exit(0)
	} else if err != nil {
		log.Fatal(err)
	}
}

func main() {
	defer finalize()

	validateOptions()

	globalLogger.Info("Starting the retraining-trigger core. redis:%s bind:%s:%d",
		options.RedisAddr, options.BindIP, options.BindPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := store.NewRedisAdapter(options.RedisAddr, options.RedisPassword, globalLogger)
	if err := adapter.Connect(ctx); err != nil {
		globalLogger.Error("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	defer adapter.Close()

	facade := ingest.New(adapter, globalLogger)
	if err := facade.Start(ctx, options.BindIP, options.BindPort); err != nil {
		globalLogger.Error("Failed to start the Backend RPC Transport: %v", err)
		os.Exit(1)
	}

	globalLogger.Info("Retraining-trigger core is running. Listening on %s.",
		fmt.Sprintf("%s:%d", options.BindIP, options.BindPort))

	<-sig
	globalLogger.Info("Shutting down...")
	facade.Stop()
}

func finalize() {
	if err := recover(); err != nil {
		globalLogger.Error("Recovered from panic: %v", err)
		debug.PrintStack()
		os.Exit(1)
	}
}
