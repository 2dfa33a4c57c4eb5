package cache

import "testing"

func TestCodeKey(t *testing.T) {
	if got := codeKey("ABC234"); got != "joincode:ABC234" {
		t.Fatalf("codeKey: %s", got)
	}
}
