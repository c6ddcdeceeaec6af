// Package logview subscribes to the progress bus and emits one structured
// log line per lifecycle event, for the CLI's --verbose / log-file mode.
// Grounded on the teacher's zerolog+lumberjack logger package.
package logview

import (
	"github.com/rs/zerolog"

	"github.com/toolza/gobyte/progress"
)

// View drains lifecycle events onto a zerolog.Logger until Close.
type View struct {
	sub *progress.Subscriber
}

// New subscribes to bus and starts logging until Close is called.
func New(bus *progress.Bus, logger zerolog.Logger) *View {
	v := &View{sub: bus.Subscribe()}

	go v.run(logger)

	return v
}

func (v *View) run(logger zerolog.Logger) {
	for e := range v.sub.Events() {
		switch ev := e.(type) {
		case progress.Started:
			logger.Info().Str("target", ev.Target).Uint32("entry", ev.Entry).
				Str("path", ev.Path).Uint64("size", ev.Size).Msg("transfer started")
		case progress.Finished:
			logger.Info().Str("target", ev.Target).Uint32("entry", ev.Entry).Msg("transfer finished")
		case progress.Skipped:
			logger.Info().Str("target", ev.Target).Uint32("entry", ev.Entry).
				Str("reason", ev.Reason).Msg("transfer skipped")
		case progress.Failed:
			logger.Error().Str("target", ev.Target).Uint32("entry", ev.Entry).
				Err(ev.Err).Msg("transfer failed")
		case progress.SessionEnded:
			logEvent := logger.Info()
			if ev.Err != nil {
				logEvent = logger.Warn().Err(ev.Err)
			}
			logEvent.Str("target", ev.Target).Msg("session ended")
		}
	}
}

// Close unsubscribes from the bus.
func (v *View) Close() {
	v.sub.Close()
}
