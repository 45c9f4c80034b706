// Package common holds the types shared by every layer of the CRDT core:
// timestamps, the logical clock, node/operation type tags, and the error
// taxonomy surfaced by codecs, the model, and the editing API.
package common

import "fmt"

// ErrEndOfInput is returned when a binary reader runs out of bytes before a
// value is fully decoded.
type ErrEndOfInput struct {
	Context string
}

func (e ErrEndOfInput) Error() string {
	return fmt.Sprintf("end of input: %s", e.Context)
}

// ErrTruncated is returned when a length-prefixed value claims more bytes
// than remain in the input.
type ErrTruncated struct {
	Want, Have int
}

func (e ErrTruncated) Error() string {
	return fmt.Sprintf("truncated input: want %d bytes, have %d", e.Want, e.Have)
}

// ErrBadMagic is returned when a fixed marker byte does not match.
type ErrBadMagic struct {
	Want, Got byte
}

func (e ErrBadMagic) Error() string {
	return fmt.Sprintf("bad magic byte: want 0x%02x, got 0x%02x", e.Want, e.Got)
}

// ErrUnknownMajor is returned when a structural node header carries a major
// type outside {Con,Val,Obj,Vec,Str,Bin,Arr}.
type ErrUnknownMajor struct {
	Major byte
}

func (e ErrUnknownMajor) Error() string {
	return fmt.Sprintf("unknown node major type: %d", e.Major)
}

// ErrUnknownOpcode is returned when a patch op stream carries an opcode
// outside the live 0-15 range.
type ErrUnknownOpcode struct {
	Opcode byte
}

func (e ErrUnknownOpcode) Error() string {
	return fmt.Sprintf("unknown opcode: %d", e.Opcode)
}

// ErrInvalidClockTable is returned when a relative-timestamp decode cannot
// find a usable clock table.
type ErrInvalidClockTable struct {
	Message string
}

func (e ErrInvalidClockTable) Error() string {
	return fmt.Sprintf("invalid clock table: %s", e.Message)
}

// ErrInvalidSessionIndex is returned when a relative timestamp references a
// session index outside the clock table's bounds.
type ErrInvalidSessionIndex struct {
	Index int
}

func (e ErrInvalidSessionIndex) Error() string {
	return fmt.Sprintf("invalid session index: %d", e.Index)
}

// ErrInvalidPayload wraps a value-codec (CBOR/MsgPack) failure surfaced from
// the leaf scalar codec.
type ErrInvalidPayload struct {
	Message string
}

func (e ErrInvalidPayload) Error() string {
	return fmt.Sprintf("invalid payload: %s", e.Message)
}

// ErrFormat is returned when a structural envelope is shaped incorrectly
// (wrong arity, wrong element type).
type ErrFormat struct {
	Message string
}

func (e ErrFormat) Error() string {
	return fmt.Sprintf("format error: %s", e.Message)
}

// ErrCausality is returned when a local tick is requested beyond the local
// clock's next reservable time.
type ErrCausality struct {
	Message string
}

func (e ErrCausality) Error() string {
	return fmt.Sprintf("causality error: %s", e.Message)
}

// ErrNotFound is returned by the editing API and JSON Patch bridge when a
// path does not resolve to any node.
type ErrNotFound struct {
	Path string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// ErrOutOfBounds is returned when an Str/Bin/Arr index or length falls
// outside the live sequence.
type ErrOutOfBounds struct {
	Index, Length int
}

func (e ErrOutOfBounds) Error() string {
	return fmt.Sprintf("out of bounds: index %d, length %d", e.Index, e.Length)
}

// ErrWrongType is returned when an op or path step targets a node of the
// wrong kind (e.g. obj_set on a Str node).
type ErrWrongType struct {
	Want, Got string
}

func (e ErrWrongType) Error() string {
	return fmt.Sprintf("wrong type: want %s, got %s", e.Want, e.Got)
}

// ErrInvalidIndex is returned when a JSON Patch array index is malformed or
// unresolvable (including "-").
type ErrInvalidIndex struct {
	Raw string
}

func (e ErrInvalidIndex) Error() string {
	return fmt.Sprintf("invalid index: %q", e.Raw)
}

// ErrEmptyWrite is returned when an editing call would write zero elements;
// callers short-circuit on this rather than emit a no-op patch.
type ErrEmptyWrite struct{}

func (e ErrEmptyWrite) Error() string { return "empty write" }

// ErrInvalidChild is returned by the JSON Patch "move" op when the
// destination path is a descendant of the source (would create a cycle).
type ErrInvalidChild struct {
	From, To string
}

func (e ErrInvalidChild) Error() string {
	return fmt.Sprintf("invalid child: cannot move %s into its descendant %s", e.From, e.To)
}

// ErrTestFailed is returned by the JSON Patch "test" op when the materialised
// value at the path does not equal the expected value.
type ErrTestFailed struct {
	Path string
}

func (e ErrTestFailed) Error() string {
	return fmt.Sprintf("test failed at %s", e.Path)
}

// ErrNodeNotFound is returned when an arena lookup misses entirely (as
// opposed to ErrNotFound, which is a path-resolution miss).
type ErrNodeNotFound struct {
	ID Timestamp
}

func (e ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node not found: %s", e.ID)
}

// ErrInvalidOperation is returned when an op carries a structurally
// inconsistent payload (e.g. a span of zero).
type ErrInvalidOperation struct {
	Message string
}

func (e ErrInvalidOperation) Error() string {
	return fmt.Sprintf("invalid operation: %s", e.Message)
}
