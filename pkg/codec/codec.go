// Package codec serializes checkpoint payloads into tagged byte blobs.
//
// Every blob starts with a two-byte ASCII tag naming the encoder that
// produced it:
//
//	MP  MessagePack, used for values made only of primitives, []any and map[string]any
//	PK  permissive JSON fallback, used for everything else (structs, typed slices, ...)
//
// Decoding dispatches on the tag. Blobs with an unknown tag are handed to the
// permissive decoder as a whole.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoder tags.
const (
	TagMsgpack  = "MP"
	TagFallback = "PK"

	tagLen = 2
)

// maxDepth bounds the capability check so that cyclic maps fall through
// to the fallback encoder, which reports the cycle.
const maxDepth = 256

// ErrDecode is matched by every *DecodeError.
var ErrDecode = errors.New("payload decode failed")

// DecodeError reports a blob that could not be turned back into a value.
type DecodeError struct {
	// Tag is the tag found at the start of the blob, or "" if the blob was too short.
	Tag string
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("decode payload: %v", e.Err)
	}
	return fmt.Sprintf("decode %s payload: %v", e.Tag, e.Err)
}

// Unwrap returns the underlying decoder error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// EncodeError reports a value that neither encoder can represent.
type EncodeError struct {
	Err error
}

// Error implements the error interface.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode payload: %v", e.Err)
}

// Unwrap returns the underlying encoder error.
func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Compact reports whether v can be stored with the MessagePack encoder and
// decoded back into an equal value. Only nil, bool, string, []byte, integer
// and float kinds, []any and map[string]any (recursively) qualify.
func Compact(v any) bool {
	return compact(v, 0)
}

func compact(v any, depth int) bool {
	if depth > maxDepth {
		return false
	}
	switch val := v.(type) {
	case nil, bool, string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	case []any:
		for _, item := range val {
			if !compact(item, depth+1) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, item := range val {
			if !compact(item, depth+1) {
				return false
			}
		}
		return true
	}
	return false
}

// Encode serializes v into a tagged blob.
func Encode(v any) ([]byte, error) {
	if Compact(v) {
		return encodeMsgpack(v)
	}
	return encodeFallback(v)
}

// Decode reverses Encode. Integers stored with MessagePack come back as
// int64 (or uint64 when they do not fit), floats as float64. Numbers stored
// with the fallback encoder come back as float64.
func Decode(data []byte) (any, error) {
	if len(data) < tagLen {
		v, err := decodeFallback(data)
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		return v, nil
	}

	tag := string(data[:tagLen])
	switch tag {
	case TagMsgpack:
		v, err := decodeMsgpack(data[tagLen:])
		if err != nil {
			return nil, &DecodeError{Tag: tag, Err: err}
		}
		return v, nil
	case TagFallback:
		v, err := decodeFallback(data[tagLen:])
		if err != nil {
			return nil, &DecodeError{Tag: tag, Err: err}
		}
		return v, nil
	default:
		// Untagged blobs are read whole.
		v, err := decodeFallback(data)
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		return v, nil
	}
}

// Tag returns the encoder tag at the start of data, or "" if there is none.
func Tag(data []byte) string {
	if len(data) < tagLen {
		return ""
	}
	switch tag := string(data[:tagLen]); tag {
	case TagMsgpack, TagFallback:
		return tag
	}
	return ""
}

func encodeMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(TagMsgpack)

	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(false)
	if err := enc.Encode(v); err != nil {
		return nil, &EncodeError{Err: err}
	}
	return buf.Bytes(), nil
}

func decodeMsgpack(body []byte) (any, error) {
	r := bytes.NewReader(body)
	dec := msgpack.NewDecoder(r)
	dec.UseLooseInterfaceDecoding(true)

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return v, nil
}

func encodeFallback(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	out := make([]byte, 0, tagLen+len(body))
	out = append(out, TagFallback...)
	return append(out, body...), nil
}

func decodeFallback(body []byte) (any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}
