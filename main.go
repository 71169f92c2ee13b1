package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"file_manager/internal/bootstrap"
	"file_manager/internal/config"
	"file_manager/internal/grpc/client"
	"file_manager/internal/logger"
	"file_manager/internal/version"

	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Println(version.GetVersion())
			return
		case "healthcheck":
			os.Exit(healthcheck())
		}
	}

	conf, err := config.MustLoad()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err = logger.Init(conf.LogLevel(), conf.LogPath()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}
	log.Info().Str("version", version.GetVersion()).Msg("Starting file manager")

	app, err := bootstrap.New(conf)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap")
	}

	if err = app.Run(); err != nil {
		log.Fatal().Err(err).Msg("Application error")
	}
}

// healthcheck queries the local gRPC health service and reports through the
// exit code, for use as a container HEALTHCHECK.
func healthcheck() int {
	conf, err := config.MustLoad()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !conf.GRPCEnabled() {
		fmt.Fprintln(os.Stderr, "gRPC health service is disabled (GRPC_ENABLED=false)")
		return 1
	}

	cli, err := client.New(&client.GrpcConfig{
		Address:    "localhost:" + conf.GRPCPort(),
		Timeout:    3 * time.Second,
		MaxRetries: 2,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err = cli.WaitForServing(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("SERVING")
	return 0
}
