package badger

import (
	"testing"

	"slmcontrol/testutil"
)

func TestImportsStayWithinBackendBoundary(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImportsOutside("slmcontrol/pkg/domain"), "badger backend depends only on the domain")
}
