// Package guard switches binaries into test mode when imported by a test.
package guard

import "os"

// EnvVar is the flag read by app.InTestMode.
const EnvVar = "VEEDURIA_TEST_MODE"

func init() {
	if os.Getenv(EnvVar) == "" {
		_ = os.Setenv(EnvVar, "1")
	}
}
