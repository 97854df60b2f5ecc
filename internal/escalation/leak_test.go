//go:build !integration

package escalation

import (
	"testing"

	"go.uber.org/goleak"
)

// Containers started by integration tests keep background goroutines alive,
// so leak checking only runs in the unit test build.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
