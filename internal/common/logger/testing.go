// internal/common/logger/testing.go
package logger

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

// NewTest returns a Logger that writes through testing.T.
func NewTest(t *testing.T) Logger {
	return NewZapAdapter(zaptest.NewLogger(t))
}
