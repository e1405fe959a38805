// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/vici/lib/vici"
)

// YAML renders messages as YAML mappings. Raw byte values use the
// !!binary tag in both directions. Scalars are read by their literal
// text, so "0x10" or "1e3" reach the message unchanged.
var YAML Format = yamlFormat{}

type yamlFormat struct{}

func (yamlFormat) Name() string { return "yaml" }

func (yamlFormat) Marshal(message vici.Section) ([]byte, error) {
	e := &yamlEmitter{}
	if err := marshalWith(e, message); err != nil {
		return nil, err
	}
	var buffer bytes.Buffer
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(2)
	if err := encoder.Encode(e.root); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (yamlFormat) Unmarshal(data []byte) (vici.Section, error) {
	var document yaml.Node
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if document.Kind != yaml.DocumentNode || len(document.Content) == 0 {
		return nil, errors.New("parsing YAML: empty document")
	}
	value, err := fromYAMLNode(document.Content[0], 0)
	if err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return topLevel(value)
}

// fromYAMLNode converts a node into the parsed-document representation
// fromDocument expects. An alias counts as one level of nesting, so
// recursive anchors hit the depth limit.
func fromYAMLNode(node *yaml.Node, depth int) (any, error) {
	if depth >= maxDepth && node.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("line %d: nesting deeper than %d", node.Line, maxDepth)
	}
	switch node.Kind {
	case yaml.AliasNode:
		return fromYAMLNode(node.Alias, depth+1)
	case yaml.MappingNode:
		object := make(vici.Section, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
			}
			value, err := fromYAMLNode(node.Content[i+1], depth+1)
			if err != nil {
				return nil, err
			}
			object = append(object, vici.Field{Key: keyNode.Value, Value: value})
		}
		return object, nil
	case yaml.SequenceNode:
		array := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			value, err := fromYAMLNode(item, depth+1)
			if err != nil {
				return nil, err
			}
			array = append(array, value)
		}
		return array, nil
	case yaml.ScalarNode:
		switch node.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!binary":
			decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(node.Value), ""))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid !!binary value: %w", node.Line, err)
			}
			return decoded, nil
		case "!!bool":
			var value bool
			if err := node.Decode(&value); err != nil {
				return nil, fmt.Errorf("line %d: %w", node.Line, err)
			}
			return value, nil
		default:
			return node.Value, nil
		}
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", node.Line)
	}
}

// yamlEmitter builds a node tree.
type yamlEmitter struct {
	root  *yaml.Node
	stack []*yaml.Node
}

func (e *yamlEmitter) add(node *yaml.Node) {
	if len(e.stack) == 0 {
		e.root = node
	} else {
		parent := e.stack[len(e.stack)-1]
		parent.Content = append(parent.Content, node)
	}
}

func (e *yamlEmitter) open(node *yaml.Node) {
	e.add(node)
	e.stack = append(e.stack, node)
}

func (e *yamlEmitter) beginMap(size int) error {
	e.open(&yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: make([]*yaml.Node, 0, 2*size)})
	return nil
}

func (e *yamlEmitter) key(name string) error {
	e.add(&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name})
	return nil
}

func (e *yamlEmitter) beginArray(size int) error {
	e.open(&yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: make([]*yaml.Node, 0, size)})
	return nil
}

func (e *yamlEmitter) text(value string) error {
	e.add(&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value})
	return nil
}

func (e *yamlEmitter) bytes(value []byte) error {
	e.add(&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!binary", Value: base64.StdEncoding.EncodeToString(value)})
	return nil
}

func (e *yamlEmitter) end() error {
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}
