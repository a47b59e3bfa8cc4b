// Command noxchess-uci runs the engine as a UCI process on stdin/stdout.
package main

import (
	"flag"
	"os"
	"runtime/pprof"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hailam/noxchess/internal/engine"
	"github.com/hailam/noxchess/internal/storage"
	"github.com/hailam/noxchess/internal/uci"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	dataDir    = flag.String("datadir", "", "directory for saved options and statistics")
	noPersist  = flag.Bool("nopersist", false, "do not load or save options")
	debug      = flag.Bool("debug", false, "log protocol traffic and search setup")
)

func main() {
	flag.Parse()

	// stdout belongs to the protocol; logs go to stderr.
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create CPU profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
		log.Info().Str("path", profilePath).Msg("CPU profiling enabled")
	}

	// A nil *storage.Storage must not reach uci.New as a non-nil Store.
	var store uci.Store
	if !*noPersist {
		s, err := storage.Open(*dataDir)
		if err != nil {
			log.Warn().Err(err).Msg("persistence disabled")
		} else {
			defer s.Close()
			store = s
		}
	}

	eng := engine.New(engine.DefaultConfig())
	defer eng.Close()

	if err := uci.New(eng, store, os.Stdout).Run(os.Stdin); err != nil {
		log.Error().Err(err).Msg("reading input")
	}
}
