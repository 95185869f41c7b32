package app

import (
	"os"
	"sync"
)

const testModeEnv = "PROFORMA_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the application should skip runtime side
// effects. The flag is read once.
func InTestMode() bool {
	return inTestMode()
}
