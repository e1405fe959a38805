// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/vici/lib/codec"
	"github.com/bureau-foundation/vici/lib/vici"
)

// Fixture describes what a mock daemon answers.
type Fixture struct {
	// Commands maps command names to their response messages. A
	// response with success=no and an errmsg is reported by clients as
	// a failed command.
	Commands map[string]vici.Section

	// Streams maps command names to the events published while the
	// command runs, before its response.
	Streams map[string]Stream

	// Periodic events are published to subscribers on a fixed interval.
	Periodic []PeriodicEvent
}

// Stream is the events of a streamed command.
type Stream struct {
	Event    string
	Messages []vici.Section
}

// PeriodicEvent is an event published on a fixed interval.
type PeriodicEvent struct {
	Event    string
	Interval time.Duration
	Message  vici.Section
}

// fixtureFile is the document form of a Fixture. Messages stay as YAML
// nodes until converted so that their entry order survives.
type fixtureFile struct {
	Commands map[string]yaml.Node `yaml:"commands"`
	Streams  map[string]struct {
		Event    string      `yaml:"event"`
		Messages []yaml.Node `yaml:"messages"`
	} `yaml:"streams"`
	Periodic []struct {
		Event    string    `yaml:"event"`
		Interval string    `yaml:"interval"`
		Message  yaml.Node `yaml:"message"`
	} `yaml:"periodic"`
}

// LoadFixture reads a fixture file. Files ending in .json or .jsonc are
// JSON with comments and trailing commas allowed; anything else is
// YAML.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	fixture, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return fixture, nil
}

// ParseFixture parses a fixture document (YAML, or JSON without
// comments).
func ParseFixture(data []byte) (*Fixture, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}

	fixture := &Fixture{
		Commands: make(map[string]vici.Section, len(file.Commands)),
		Streams:  make(map[string]Stream, len(file.Streams)),
	}
	var errs []error

	for name, node := range file.Commands {
		message, err := nodeMessage(&node)
		if err != nil {
			errs = append(errs, fmt.Errorf("commands.%s: %w", name, err))
			continue
		}
		fixture.Commands[name] = message
	}

	for name, stream := range file.Streams {
		if stream.Event == "" {
			errs = append(errs, fmt.Errorf("streams.%s: event is required", name))
			continue
		}
		converted := Stream{Event: stream.Event}
		for index := range stream.Messages {
			message, err := nodeMessage(&stream.Messages[index])
			if err != nil {
				errs = append(errs, fmt.Errorf("streams.%s.messages[%d]: %w", name, index, err))
				continue
			}
			converted.Messages = append(converted.Messages, message)
		}
		fixture.Streams[name] = converted
	}

	for index, periodic := range file.Periodic {
		if periodic.Event == "" {
			errs = append(errs, fmt.Errorf("periodic[%d]: event is required", index))
			continue
		}
		interval, err := time.ParseDuration(periodic.Interval)
		if err != nil || interval <= 0 {
			errs = append(errs, fmt.Errorf("periodic[%d]: interval must be a positive duration, got %q", index, periodic.Interval))
			continue
		}
		message, err := nodeMessage(&periodic.Message)
		if err != nil {
			errs = append(errs, fmt.Errorf("periodic[%d].message: %w", index, err))
			continue
		}
		fixture.Periodic = append(fixture.Periodic, PeriodicEvent{
			Event:    periodic.Event,
			Interval: interval,
			Message:  message,
		})
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return fixture, nil
}

// nodeMessage converts a YAML node to a message. An absent or null node
// is an empty message.
func nodeMessage(node *yaml.Node) (vici.Section, error) {
	if node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.Tag == "!!null") {
		return vici.Section{}, nil
	}
	data, err := yaml.Marshal(node)
	if err != nil {
		return nil, err
	}
	return codec.YAML.Unmarshal(data)
}
