package app

import (
	"testing"

	_ "github.com/boostline/boostline/testing"
)

func TestBlankImportEnablesTestMode(t *testing.T) {
	// The blank import's init ran before this package's tests, so the
	// flag must already be visible.
	RefreshTestMode()
	if !InTestMode() {
		t.Fatalf("test mode not enabled by blank import")
	}
}
