package mesh

import (
	"errors"
	"fmt"
)

// Registration failure kinds. Errors from the mesh, geometry and
// registration functions wrap one of these sentinels, so callers can classify
// failures with errors.Is without string matching. Configuration, MQTT,
// publishing and file open/create errors do not wrap them.
var (
	// ErrInvalidInput marks structurally unusable input: empty meshes,
	// mismatched array lengths, negative weights or flags.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDegenerateGeometry marks inputs the math cannot proceed on: a
	// failed eigendecomposition, a degenerate rotation quaternion, a
	// non-positive similarity scale, or a decimation that produced an
	// invalid mesh. A zero weight sum or a fully flagged-out correspondence
	// set is not an error: the transformers treat it as a no-op.
	ErrDegenerateGeometry = errors.New("degenerate geometry")

	// ErrNumericOverflow marks a non-finite value produced mid-pipeline.
	ErrNumericOverflow = errors.New("numeric overflow")

	// ErrIndexBuild marks a spatial index construction failure.
	ErrIndexBuild = errors.New("spatial index build failed")
)

func wrapWith(kind error, msg string) error {
	return fmt.Errorf("%w: %s", kind, msg)
}

func wrapInvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func wrapDegenerate(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDegenerateGeometry, fmt.Sprintf(format, args...))
}

func wrapOverflow(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNumericOverflow, fmt.Sprintf(format, args...))
}
