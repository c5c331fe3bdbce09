// Package jsoncodec lets connect handlers exchange plain Go structs encoded
// as JSON, for services that are not described by protobuf.
package jsoncodec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// Name replaces connect's protojson codec for the handlers it is attached to.
const Name = "json"

type codec struct{}

// New returns a codec for use with connect.WithCodec.
func New() connect.Codec {
	return codec{}
}

// WithHandlerOption is shorthand for connect.WithCodec(New()).
func WithHandlerOption() connect.HandlerOption {
	return connect.WithCodec(New())
}

func (codec) Name() string { return Name }

func (codec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return b, nil
}

func (codec) Unmarshal(data []byte, msg any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
