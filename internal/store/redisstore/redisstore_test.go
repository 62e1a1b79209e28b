package redisstore

import (
	"strings"
	"testing"
)

func TestKey(t *testing.T) {
	a := key("آپ کا بل")
	b := key("آپ کا بل")
	c := key("آپ کا بل ")

	if a != b {
		t.Error("same text must map to the same key")
	}
	if a == c {
		t.Error("different text must map to different keys")
	}
	if !strings.HasPrefix(a, keyPrefix) || len(a) != len(keyPrefix)+64 {
		t.Errorf("unexpected key shape %q", a)
	}
}
