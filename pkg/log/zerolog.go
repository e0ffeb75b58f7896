package log

import (
	"io"

	"github.com/YuminosukeSato/softclust/pkg/errors"
	"github.com/rs/zerolog"
)

// EnableZerologWarnings routes warnings raised through errors.Warn (empty
// clusters, clamped variances) to w as zerolog JSON lines. Warnings that
// implement zerolog.LogObjectMarshaler contribute their structured fields.
// It returns a function restoring the previous plain handler.
func EnableZerologWarnings(w io.Writer) func() {
	logger := zerolog.New(w).With().Timestamp().Str(ComponentKey, "warnings").Logger()
	errors.SetZerologWarnFunc(func(warning error) {
		ev := logger.Warn()
		if m, ok := warning.(zerolog.LogObjectMarshaler); ok {
			ev = ev.EmbedObject(m)
		}
		ev.Msg(warning.Error())
	})
	return func() { errors.SetZerologWarnFunc(nil) }
}
