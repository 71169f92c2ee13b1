package main

import (
	"fmt"
	"os"

	"file_manager/internal/version"
	"file_manager/internal/watch"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	addr := pflag.StringP("addr", "a", "localhost:3000", "file manager address, host:port or URL")
	noColor := pflag.Bool("no-color", false, "disable colours")
	showVersion := pflag.BoolP("version", "v", false, "print version and exit")
	pflag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *showVersion {
		fmt.Println(version.GetVersion())
		return
	}

	if *noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	} else {
		lipgloss.SetColorProfile(termenv.EnvColorProfile())
	}

	if err := watch.Run(*addr, os.Stdout); err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("Event viewer failed")
	}
}
