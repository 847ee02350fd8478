package model

import (
	"errors"
	"fmt"
)

// StructuralError reports a defect in the block/connection graph
// detected at build time. Structural errors are fatal and never
// retried: the model must be corrected before it can be scheduled.
type StructuralError struct {
	// Code identifies the error category.
	Code StructuralErrorCode

	// Message is a human-readable description.
	Message string

	// Block names the offending block, when known.
	Block string

	// Port names the offending port, when known.
	Port string
}

// StructuralErrorCode categorizes structural errors.
type StructuralErrorCode string

const (
	// ErrCodeDuplicateName indicates a block name registered twice.
	ErrCodeDuplicateName StructuralErrorCode = "DUPLICATE_NAME"

	// ErrCodeUnknownBlock indicates a connection endpoint naming a
	// block that is not in the model.
	ErrCodeUnknownBlock StructuralErrorCode = "UNKNOWN_BLOCK"

	// ErrCodeUnknownPort indicates a connection endpoint naming a port
	// the block does not declare.
	ErrCodeUnknownPort StructuralErrorCode = "UNKNOWN_PORT"

	// ErrCodePortAlreadyConnected indicates a second source wired to an
	// input that already has one (fan-in is forbidden).
	ErrCodePortAlreadyConnected StructuralErrorCode = "PORT_ALREADY_CONNECTED"

	// ErrCodeTypeMismatch indicates statically declared port shapes
	// that cannot carry the same signal.
	ErrCodeTypeMismatch StructuralErrorCode = "TYPE_MISMATCH"

	// ErrCodeUnconnectedPort indicates a required input left without a
	// source at validation time.
	ErrCodeUnconnectedPort StructuralErrorCode = "UNCONNECTED_REQUIRED_PORT"
)

// Error implements the error interface.
func (e *StructuralError) Error() string {
	switch {
	case e.Block != "" && e.Port != "":
		return fmt.Sprintf("%s: %s (block=%s, port=%s)", e.Code, e.Message, e.Block, e.Port)
	case e.Block != "":
		return fmt.Sprintf("%s: %s (block=%s)", e.Code, e.Message, e.Block)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func isCode(err error, code StructuralErrorCode) bool {
	var se *StructuralError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsDuplicateName reports whether err is a duplicate block name error.
func IsDuplicateName(err error) bool { return isCode(err, ErrCodeDuplicateName) }

// IsUnknownBlock reports whether err names a block missing from the model.
func IsUnknownBlock(err error) bool { return isCode(err, ErrCodeUnknownBlock) }

// IsUnknownPort reports whether err names a port missing from a block.
func IsUnknownPort(err error) bool { return isCode(err, ErrCodeUnknownPort) }

// IsPortAlreadyConnected reports whether err is a fan-in violation.
func IsPortAlreadyConnected(err error) bool { return isCode(err, ErrCodePortAlreadyConnected) }

// IsTypeMismatch reports whether err is a static shape incompatibility.
func IsTypeMismatch(err error) bool { return isCode(err, ErrCodeTypeMismatch) }

// IsUnconnectedPort reports whether err is a missing required source.
func IsUnconnectedPort(err error) bool { return isCode(err, ErrCodeUnconnectedPort) }

// NewDuplicateNameError builds the error for a block name collision.
func NewDuplicateNameError(block string) *StructuralError {
	return &StructuralError{
		Code:    ErrCodeDuplicateName,
		Message: "block name already exists",
		Block:   block,
	}
}

// NewUnknownBlockError builds the error for a missing block reference.
func NewUnknownBlockError(block string) *StructuralError {
	return &StructuralError{
		Code:    ErrCodeUnknownBlock,
		Message: "block is not part of the model",
		Block:   block,
	}
}

// NewUnknownPortError builds the error for a missing port reference.
func NewUnknownPortError(block, port, direction string) *StructuralError {
	return &StructuralError{
		Code:    ErrCodeUnknownPort,
		Message: fmt.Sprintf("block has no %s port with this name", direction),
		Block:   block,
		Port:    port,
	}
}

// NewPortAlreadyConnectedError builds the fan-in violation error.
func NewPortAlreadyConnectedError(block, port string) *StructuralError {
	return &StructuralError{
		Code:    ErrCodePortAlreadyConnected,
		Message: "input already has a source",
		Block:   block,
		Port:    port,
	}
}

// NewTypeMismatchError builds the static shape incompatibility error.
func NewTypeMismatchError(block, port, detail string) *StructuralError {
	return &StructuralError{
		Code:    ErrCodeTypeMismatch,
		Message: detail,
		Block:   block,
		Port:    port,
	}
}

// NewUnconnectedPortError builds the missing required source error.
func NewUnconnectedPortError(block, port string) *StructuralError {
	return &StructuralError{
		Code:    ErrCodeUnconnectedPort,
		Message: "required input has no source",
		Block:   block,
		Port:    port,
	}
}
