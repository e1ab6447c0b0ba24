// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package state

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Codec converts state values to and from the string form kept in a medium.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec encodes state as JSON. It is the default codec.
type JSONCodec struct{}

// Name implements Codec.
func (JSONCodec) Name() string { return "json" }

// Marshal implements Codec.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	//nolint:wrapcheck // callers wrap with store context
	return json.Marshal(v)
}

// Unmarshal implements Codec.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	//nolint:wrapcheck // callers wrap with store context
	return json.Unmarshal(data, v)
}

// YAMLCodec encodes state as YAML, which keeps hand-edited file media readable.
type YAMLCodec struct{}

// Name implements Codec.
func (YAMLCodec) Name() string { return "yaml" }

// Marshal implements Codec.
func (YAMLCodec) Marshal(v any) ([]byte, error) {
	//nolint:wrapcheck // callers wrap with store context
	return yaml.Marshal(v)
}

// Unmarshal implements Codec.
func (YAMLCodec) Unmarshal(data []byte, v any) error {
	//nolint:wrapcheck // callers wrap with store context
	return yaml.Unmarshal(data, v)
}

// CodecByName returns the codec registered under name, defaulting to JSON.
func CodecByName(name string) Codec {
	if name == (YAMLCodec{}).Name() {
		return YAMLCodec{}
	}
	return JSONCodec{}
}
