// Package telemetry provides the structured logger used throughout the
// batch engine, replacing the teacher's plain log.Print call sites with
// zerolog the way jhkimqd-chaos-utils/pkg/reporting/logger.go wraps
// zerolog for a CLI tool: one Logger value, built once from config.Settings
// and threaded explicitly into each component (no package-global logger).
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/SavinovAleksandr/dss/config"
)

// Logger wraps a zerolog.Logger with the event-site helpers the solvers
// call at each point in the §7 error taxonomy.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger from the run's LoggingSettings.
func New(cfg config.LoggingSettings, out io.Writer) Logger {
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return Logger{z: zerolog.New(out).Level(level).With().Timestamp().Logger()}
}

// With returns a child logger with the given (regime, variant, scenario)
// triple attached to every subsequent event, matching the identifying
// context the Python layer embeds in its ad-hoc f-string log messages.
func (l Logger) With(regime, variant, scenario string) Logger {
	return Logger{z: l.z.With().
		Str("regime", regime).
		Str("variant", variant).
		Str("scenario", scenario).
		Logger()}
}

// BudgetExhausted logs taxonomy item 4 from SPEC_FULL.md §7.
func (l Logger) BudgetExhausted(solver string, iterations int) {
	l.z.Warn().Str("solver", solver).Int("iterations", iterations).Msg("iteration budget exhausted")
}

// Stagnated logs taxonomy item 5.
func (l Logger) Stagnated(solver string, iterations int) {
	l.z.Warn().Str("solver", solver).Int("iterations", iterations).Msg("search stagnated")
}

// UnparseableLogLine logs taxonomy item 6.
func (l Logger) UnparseableLogLine(solver, raw string) {
	l.z.Warn().Str("solver", solver).Str("line", raw).Msg("could not parse simulator log line, using last valid reading")
}

// SimOpFailed logs taxonomy item 3.
func (l Logger) SimOpFailed(op string, err error) {
	l.z.Error().Str("op", op).Err(err).Msg("simulator operation failed")
}

// SchemeUnbalanced logs taxonomy item 2.
func (l Logger) SchemeUnbalanced(variant string) {
	l.z.Warn().Str("variant", variant).Msg("scheme failed to balance, skipping downstream scenarios")
}

// Info logs a plain informational event.
func (l Logger) Info(msg string) { l.z.Info().Msg(msg) }

// Debug logs a plain debug event.
func (l Logger) Debug(msg string) { l.z.Debug().Msg(msg) }
