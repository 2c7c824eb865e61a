// Package logging builds the zerolog loggers used by the docbench commands.
package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	dberrors "github.com/AvishaiDotan/mongodb-functions/internal/errors"
)

// RFC3339Milli is the timestamp layout of every log line.
const RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a logger writing to out at level in format (console or json).
// Console output carries no colour when noColor is set.
func New(out io.Writer, level, format string, noColor bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), dberrors.NewConfigError(fmt.Sprintf("invalid log level %q", level))
	}

	zerolog.TimeFieldFormat = RFC3339Milli
	zerolog.CallerMarshalFunc = shortCaller

	var w io.Writer
	switch strings.ToLower(format) {
	case FormatJSON:
		w = out
	case FormatConsole, "":
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: RFC3339Milli,
			FormatLevel: func(i interface{}) string {
				return strings.ToUpper(fmt.Sprintf("%s", i))
			},
			FormatCaller: func(i interface{}) string {
				return filepath.Base(fmt.Sprintf("%s", i))
			},
			NoColor: noColor,
		}
	default:
		return zerolog.Nop(), dberrors.NewConfigError(fmt.Sprintf("invalid log format %q", format))
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func shortCaller(_ uintptr, file string, line int) string {
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
