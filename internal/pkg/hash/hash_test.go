package hash

import "testing"

func TestKey(t *testing.T) {
	// Well-known digest of the empty string.
	if got := Key(""); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("Key(\"\") = %s", got)
	}
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("Key() must separate parts")
	}
	if Key("model@1", "add milk") != Key("model@1", "add milk") {
		t.Error("Key() must be deterministic")
	}
	if len(Key("x")) != 64 {
		t.Errorf("Key() length = %d, want 64", len(Key("x")))
	}
}

func TestShortKey(t *testing.T) {
	full := Key("luserve", "0.1")
	if got := ShortKey(16, "luserve", "0.1"); got != full[:16] {
		t.Errorf("ShortKey(16) = %s, want %s", got, full[:16])
	}
	if got := ShortKey(500, "luserve", "0.1"); got != full {
		t.Error("ShortKey() with n > len should return the full key")
	}
	if got := ShortKey(0, "luserve"); got != Key("luserve") {
		t.Error("ShortKey(0) should return the full key")
	}
}
