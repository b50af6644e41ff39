package testutil

import "testing"

// Given, When, and Then name the phases of a check-in scenario as nested
// subtests, so a failure reads like the scenario that produced it
// ("Given a full service/When an eligible child attempts check-in/...").

func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Given "+desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("When "+desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run("Then "+desc, fn)
}
