// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/bureau-foundation/vici/lib/client"
	"github.com/bureau-foundation/vici/lib/codec"
	"github.com/bureau-foundation/vici/lib/config"
	"github.com/bureau-foundation/vici/lib/vici"
)

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// OutputFormat resolves a --format value, falling back to
// output.format from the configuration.
func (e *Environment) OutputFormat(name string) (codec.Format, error) {
	if name == "" {
		name = e.Config.Output.Format
	}
	format, err := codec.Lookup(name)
	if err != nil {
		return nil, &ToolError{Category: CategoryValidation, Err: err}
	}
	return format, nil
}

// WriteMessage renders message in format to stdout. Text formats are
// highlighted according to output.color. Binary formats are written
// raw, except on a terminal where CBOR is shown in diagnostic notation
// and MessagePack as a hex dump.
func (e *Environment) WriteMessage(format codec.Format, message vici.Section) error {
	data, err := format.Marshal(message)
	if err != nil {
		return Validation("rendering %s: %w", format.Name(), err)
	}

	switch format {
	case codec.JSON, codec.YAML:
		return Highlight(e.Stdout, data, format.Name(), e.Config.Output)
	}

	if !IsTerminal(e.Stdout) {
		_, err := e.Stdout.Write(data)
		return err
	}
	if format == codec.CBOR {
		diagnostic, err := codec.Diagnose(data)
		if err != nil {
			return Internal("diagnosing CBOR: %w", err)
		}
		_, err = fmt.Fprintln(e.Stdout, diagnostic)
		return err
	}
	_, err = io.WriteString(e.Stdout, hex.Dump(data))
	return err
}

// WriteEvent renders an event as a message with a single section named
// after the event, holding the event's message.
func (e *Environment) WriteEvent(format codec.Format, event client.Event) error {
	var message vici.Section
	if err := event.Decode(&message); err != nil {
		return Internal("decoding %q event: %w", event.Name, err)
	}
	return e.WriteMessage(format, vici.Section{{Key: event.Name, Value: message}})
}

// Highlight writes source to w, syntax highlighted as language when the
// color mode and w allow it.
func Highlight(w io.Writer, source []byte, language string, output config.OutputConfig) error {
	formatter := terminalFormatter(colorProfile(w, output.Color))
	if formatter == "" {
		_, err := w.Write(source)
		return err
	}
	return quick.Highlight(w, string(source), language, formatter, output.Style)
}

// colorProfile returns the color capability to highlight with. "auto"
// honors NO_COLOR and CLICOLOR_FORCE and never colors a non-terminal.
func colorProfile(w io.Writer, mode string) termenv.Profile {
	switch mode {
	case "never":
		return termenv.Ascii
	case "always":
		return termenv.ANSI256
	}
	if !IsTerminal(w) {
		return termenv.Ascii
	}
	return termenv.NewOutput(w).EnvColorProfile()
}

// terminalFormatter maps a color profile to a chroma formatter name, or
// "" for no color.
func terminalFormatter(profile termenv.Profile) string {
	switch profile {
	case termenv.TrueColor:
		return "terminal16m"
	case termenv.ANSI256:
		return "terminal256"
	case termenv.ANSI:
		return "terminal"
	default:
		return ""
	}
}
