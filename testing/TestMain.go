// Package testing switches the binaries into test mode. Test packages import
// it for the side effect, or delegate their TestMain to it.
package testing

import (
	"os"
	stdtesting "testing"
)

// EnvTestMode mirrors app.TestModeEnv. The app package imports this one in
// its tests, so the constant cannot be shared.
const EnvTestMode = "BALANCE360_TEST_MODE"

func init() {
	_ = os.Setenv(EnvTestMode, "true")
}

// TestMain runs m with test mode enabled.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}
