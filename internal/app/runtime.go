package app

import (
	"os"
	"sync"
)

// TestModeEnv disables process start-up in the binaries when set to "1".
const TestModeEnv = "CREDINET_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the binaries should skip connecting to Postgres and Redis.
func InTestMode() bool {
	return testMode()
}
