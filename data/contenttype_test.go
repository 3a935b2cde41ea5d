package data

import "testing"

func TestContentTypeOf(t *testing.T) {
	cases := map[string]string{
		"a/b.txt":       ContentTypeTextPlain,
		"movie.MKV":     "video/x-matroska",
		"live/seg.ts":   "video/mp2t",
		"index.m3u8":    "application/vnd.apple.mpegurl",
		"README":        ContentTypeOctetStream,
		"blob.unknown1": ContentTypeOctetStream,
	}

	for name, expected := range cases {
		if got := ContentTypeOf(name); got != expected {
			t.Errorf("ContentTypeOf(%q) = %q, expected %q", name, got, expected)
		}
	}
}
