package data

import (
	"strings"
	"testing"
)

func TestCleanPath(t *testing.T) {
	cases := []struct {
		cwd, requested string
		expected       string
		escaped        bool
	}{
		{"/", "", "/", false},
		{"/", "a/b.txt", "/a/b.txt", false},
		{"/a", "b.txt", "/a/b.txt", false},
		{"/a", "/c", "/c", false},
		{"/a/b", "../c", "/a/c", false},
		{"/a", "./b/./c/", "/a/b/c", false},
		{"/a", "../../x", "/x", true},
		{"/", "..", "/", true},
		{"/a//b", "c", "/a/b/c", false},
	}

	for _, c := range cases {
		got, escaped := CleanPath(c.cwd, c.requested)
		if got != c.expected || escaped != c.escaped {
			t.Errorf("CleanPath(%q, %q) = (%q, %v), expected (%q, %v)",
				c.cwd, c.requested, got, escaped, c.expected, c.escaped)
		}
	}
}

func TestResolveKey_NoLeadingSeparatorAndIdempotent(t *testing.T) {
	inputs := []string{"", "/", "a", "/a/b/", "../..", "./x/../y", "//deep///path", "a/./b/../../c"}
	for _, cwd := range []string{"/", "/a", "/a/b"} {
		for _, in := range inputs {
			key, _ := ResolveKey(cwd, in)
			if strings.HasPrefix(key, Separator) {
				t.Errorf("ResolveKey(%q, %q) = %q starts with separator", cwd, in, key)
			}

			again, escaped := ResolveKey(cwd, Separator+key)
			if again != key || escaped {
				t.Errorf("ResolveKey(%q, %q) = %q, resolving it again as absolute gave %q (escaped %v)",
					cwd, in, key, again, escaped)
			}
		}
	}

	if _, escaped := ResolveKey("/a", "../../x"); !escaped {
		t.Errorf("Expected ResolveKey to report the escape")
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := DirectoryPrefix(""); got != "" {
		t.Errorf("DirectoryPrefix(root) = %q", got)
	}
	if got := DirectoryPrefix("a/b"); got != "a/b/" {
		t.Errorf("DirectoryPrefix = %q", got)
	}
	if got := ParentKey("a/b/c.txt"); got != "a/b" {
		t.Errorf("ParentKey = %q", got)
	}
	if got := ParentKey("c.txt"); got != "" {
		t.Errorf("ParentKey(top level) = %q", got)
	}
	if got := BaseName("a/b/"); got != "b" {
		t.Errorf("BaseName = %q", got)
	}
	if got := BaseName(""); got != "" {
		t.Errorf("BaseName(root) = %q", got)
	}
	if got := JoinKey("", "x", "y"); got != "x/y" {
		t.Errorf("JoinKey = %q", got)
	}
	if !HasDotDot("a/../b") || HasDotDot("a/..b") {
		t.Errorf("HasDotDot misdetected")
	}
	if !IsWithin("a/b", "a") || IsWithin("ab", "a") || !IsWithin("x", "") {
		t.Errorf("IsWithin misdetected")
	}
}
