package edge

import (
	"errors"
	"fmt"
)

// DriverError wraps a failure from the RobotController boundary (§7 DRIVER
// kind: "never wrapped or retried — treated as fatal to the process").
type DriverError struct {
	Op    string
	Cause error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("edge: driver error during %s: %v", e.Op, e.Cause)
}

func (e *DriverError) Unwrap() error { return e.Cause }

var errMalformedReply = errors.New("get_action reply missing a well-formed action")

// err2transport re-surfaces a get_action failure as a loop-fatal error.
// TIMEOUT and APP_ERROR are handled before this is reached (§4.5 fallback
// ladder, §7); everything left here is a genuine transport/protocol failure
// (TRANSPORT, UNAUTHORIZED, UNKNOWN_ENDPOINT, DECODE, OVERSIZED, UNREACHABLE,
// or a reply without a well-formed action).
func err2transport(err error) error {
	return fmt.Errorf("edge: get_action failed: %w", err)
}
