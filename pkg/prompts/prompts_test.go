package prompts

import (
	"strings"
	"testing"
)

func TestLookup(t *testing.T) {
	for _, key := range DefaultChain {
		p, err := Lookup(key)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", key, err)
		}
		if !strings.Contains(p, "<rinf>") {
			t.Errorf("prompt %q does not teach <rinf>", key)
		}
	}

	eng, _ := Lookup(Engineer)
	for _, tag := range []string{"<cfol>", "<cfil>", `<efil file="`, "<exec>", "requirements.txt"} {
		if !strings.Contains(eng, tag) {
			t.Errorf("engineer prompt missing %s", tag)
		}
	}

	if _, err := Lookup("qa"); err == nil {
		t.Error("Lookup of unknown key succeeded")
	}
}
