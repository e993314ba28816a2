package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type Builder struct {
	writer  io.Writer
	level   zerolog.Level
	console bool
}

func New() *Builder {
	return &Builder{writer: os.Stdout, level: zerolog.InfoLevel}
}

func (b *Builder) Writer(w io.Writer) *Builder {
	if w != nil {
		b.writer = w
	}
	return b
}

// Level accepts zerolog level names; unknown names keep the current level.
func (b *Builder) Level(name string) *Builder {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err == nil && parsed != zerolog.NoLevel {
		b.level = parsed
	}
	return b
}

// Console switches to the human readable writer when format is "console".
func (b *Builder) Console(format string) *Builder {
	b.console = strings.EqualFold(strings.TrimSpace(format), "console")
	return b
}

func (b *Builder) Make() zerolog.Logger {
	w := b.writer
	if b.console {
		w = zerolog.ConsoleWriter{Out: b.writer, NoColor: true}
	}
	return zerolog.New(w).Level(b.level).With().Timestamp().Logger()
}
