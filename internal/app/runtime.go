package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv turns the binaries into no-ops so their packages can be
// covered by go test without listeners, workers or outbound connections.
const TestModeEnv = "BALANCE360_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	return on
})

// InTestMode reports whether TestModeEnv was set when first consulted.
func InTestMode() bool {
	return testMode()
}
