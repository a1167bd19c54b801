package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"adspot-auction/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	outputMu sync.RWMutex
	output   io.Writer = os.Stdout
	fileOut  *cappedFile

	httpBodies atomic.Bool
)

// Init configures the global zerolog logger. When cfg.File is set, logs are
// written to stdout and to a size-capped file.
func Init(cfg config.LogConfig) error {
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(cfg.Level); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	var w io.Writer = os.Stdout
	if path := strings.TrimSpace(cfg.File); path != "" {
		f, err := openCappedFile(path, cfg.MaxMB)
		if err != nil {
			return err
		}
		outputMu.Lock()
		if fileOut != nil {
			_ = fileOut.Close()
		}
		fileOut = f
		outputMu.Unlock()
		w = io.MultiWriter(os.Stdout, f)
	}

	outputMu.Lock()
	output = w
	outputMu.Unlock()

	var console io.Writer = w
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: w}
	}

	httpBodies.Store(cfg.HTTPBodies)
	zerolog.SetGlobalLevel(level)
	ctx := zerolog.New(console).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger
	return nil
}

// Writer returns the raw sink used by the global logger, for structured
// loggers that are not zerolog (the slog handler behind httplog).
func Writer() io.Writer {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return output
}

// HTTPBodies reports whether access logs should include bodies.
func HTTPBodies() bool {
	return httpBodies.Load()
}

func Close() error {
	outputMu.Lock()
	defer outputMu.Unlock()
	if fileOut == nil {
		return nil
	}
	err := fileOut.Close()
	fileOut = nil
	output = os.Stdout
	return err
}
