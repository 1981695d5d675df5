// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package clog provides global conditional logging for application components.
package clog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var enabled = false

// Enable turns on conditional log output.
func Enable() {
	enabled = true
}

var base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.StampMicro}).With().Timestamp().Logger()

// A CLogger represents a logger object that logs output in the manner of the
// standard logger but can be conditionally enabled. By default, conditional
// logging is disabled.
type CLogger struct {
	logger zerolog.Logger // structured logger carrying a fixed component prefix
}

// New creates a new conditional logger with the given prefix.
//
// prefixFormat/prefixArgs are rendered once and attached to every subsequent
// log line as a "component" field, mirroring the fixed-prefix behavior of the
// standard logger this type originally wrapped.
func New(prefixFormat string, prefixArgs ...any) *CLogger {
	prefix := strings.TrimSpace(fmt.Sprintf(prefixFormat, prefixArgs...))
	return &CLogger{
		logger: base.With().Str("component", prefix).Logger(),
	}
}

// Printf logs output conditionally (if enabled with -l command line option) in
// the manner of log.Printf.
func (c *CLogger) Printf(format string, a ...any) {
	if !enabled {
		return
	}
	c.logger.Debug().Msg(fmt.Sprintf(format, a...))
}

// Errorf logs output unconditionally, i.e. always, in the manner of log.Printf.
func (c *CLogger) Errorf(format string, a ...any) {
	c.logger.Error().Msg(fmt.Sprintf(format, a...))
}
