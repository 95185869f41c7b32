// Package guard switches the application into test mode when imported for
// side effects from a test file:
//
//	import _ "github.com/laha-editions/proforma/internal/testing/guard"
//
// In test mode loggers discard output and the binaries refuse to start.
package guard

import "os"

func init() {
	if os.Getenv("PROFORMA_TEST_MODE") == "" {
		_ = os.Setenv("PROFORMA_TEST_MODE", "1")
	}
}
