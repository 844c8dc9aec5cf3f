/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, nil)
}

// SetupWithFile configures zerolog and, when path is set, also writes JSON
// lines to a rotating log file. capture, when not nil, receives the same
// JSON lines.
func SetupWithFile(environment, path string, capture io.Writer) (zerolog.Logger, io.Closer) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	if capture != nil {
		writers = append(writers, capture)
	}
	if path != "" {
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		writers = append(writers, file)
		closer = file
	}
	switch len(writers) {
	case 0:
		return Setup(environment), closer
	case 1:
		return SetupWithWriter(environment, writers[0]), closer
	}
	return SetupWithWriter(environment, io.MultiWriter(writers...)), closer
}

// SetupWithWriter configures zerolog with an additional writer that receives JSON.
func SetupWithWriter(environment string, additionalWriter io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
	}

	// Console writer for human-readable output
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout}

	var writer io.Writer = consoleWriter
	if additionalWriter != nil {
		writer = zerolog.MultiLevelWriter(consoleWriter, additionalWriter)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
