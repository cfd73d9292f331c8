package ulc

import (
	"os"

	"github.com/charmbracelet/log"
)

// defaultLogger is the parent of every EncoderState's logger: Init derives
// each stream's logger from it via streamLogger. EncoderState.logger is
// unexported, so callers outside this package cannot supply another sink.
var defaultLogger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Level:           log.WarnLevel,
})

// streamLogger returns a logger scoped to one stream's identity, used for
// the degenerate-input and rejection diagnostics described in §7. It is
// never called from the EncodeBlock* hot path itself.
func streamLogger(streamID string) *log.Logger {
	return defaultLogger.With("stream_id", streamID)
}
