package consul

import (
	"testing"
	"time"

	"github.com/hashicorp/consul/api"
)

func TestBuildKey(t *testing.T) {
	cases := []struct {
		prefix string
		key    string
		full   string
		dir    string
	}{
		{"", "", "", ""},
		{"", "a/b.txt", "a/b.txt", "a/b.txt/"},
		{"/unifs/media/", "", "unifs/media", "unifs/media/"},
		{"unifs", "a", "unifs/a", "unifs/a/"},
	}

	for _, tc := range cases {
		cb, err := NewConsulBackend(Config{Prefix: tc.prefix})
		if err != nil {
			t.Fatalf("NewConsulBackend failed: %v", err)
		}

		if got := cb.buildKey(tc.key); got != tc.full {
			t.Errorf("buildKey(%q, %q) = %q, expected %q", tc.prefix, tc.key, got, tc.full)
		}
		if got := cb.buildPrefix(tc.key); got != tc.dir {
			t.Errorf("buildPrefix(%q, %q) = %q, expected %q", tc.prefix, tc.key, got, tc.dir)
		}
	}
}

func TestToFileStat(t *testing.T) {
	modified := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	stat := toFileStat("a/b.txt", &api.KVPair{
		Key:         "a/b.txt",
		Value:       []byte("hello"),
		Flags:       uint64(modified.Unix()),
		ModifyIndex: 42,
	})
	if stat.IsDir() || stat.Size != 5 || stat.Name != "b.txt" || stat.ETag != "42" {
		t.Errorf("Unexpected stat: %+v", stat)
	}
	if !stat.ModifyTime.Equal(modified) {
		t.Errorf("Expected modification time from flags, got %v", stat.ModifyTime)
	}

	if bare := toFileStat("x", &api.KVPair{Key: "x"}); !bare.ModifyTime.IsZero() {
		t.Errorf("Expected zero time without flags, got %v", bare.ModifyTime)
	}
}
