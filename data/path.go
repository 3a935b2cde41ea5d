package data

import (
	"path"
	"strings"
)

const Separator = "/"

// CleanPath joins requested onto the absolute directory cwd and collapses
// "." and ".." segments. The result always starts with a separator.
// escaped reports whether a ".." segment tried to climb above the root;
// those segments are clamped.
func CleanPath(cwd, requested string) (abs string, escaped bool) {
	full := requested
	if !strings.HasPrefix(requested, Separator) {
		full = cwd + Separator + requested
	}

	segments := make([]string, 0, strings.Count(full, Separator))
	for _, segment := range strings.Split(full, Separator) {
		switch segment {
		case "", ".":
			continue
		case "..":
			if len(segments) == 0 {
				escaped = true
				continue
			}
			segments = segments[:len(segments)-1]
		default:
			segments = append(segments, segment)
		}
	}

	return Separator + strings.Join(segments, Separator), escaped
}

// ResolveKey turns requested into a backend key relative to the storage
// root. The key never starts with a separator; the root is "". escaped is
// reported as by CleanPath.
func ResolveKey(cwd, requested string) (key string, escaped bool) {
	abs, escaped := CleanPath(cwd, requested)
	return ToKey(abs), escaped
}

// ToKey strips leading and trailing separators from an absolute path.
func ToKey(abs string) string {
	return strings.Trim(abs, Separator)
}

// ToAbsolutePath ensures key starts with a separator.
func ToAbsolutePath(key string) string {
	return Separator + strings.TrimPrefix(key, Separator)
}

// DirectoryPrefix returns the delimiter-terminated listing prefix for key.
// The root maps to the empty prefix.
func DirectoryPrefix(key string) string {
	key = strings.Trim(key, Separator)
	if key == "" {
		return ""
	}

	return key + Separator
}

// ParentKey returns the key of the directory containing key.
func ParentKey(key string) string {
	key = strings.Trim(key, Separator)
	if idx := strings.LastIndex(key, Separator); idx >= 0 {
		return key[:idx]
	}

	return ""
}

// BaseName returns the last segment of key, ignoring a trailing separator.
func BaseName(key string) string {
	key = strings.TrimSuffix(key, Separator)
	if key == "" {
		return ""
	}

	return path.Base(key)
}

// JoinKey joins segments into a key without leading separator.
func JoinKey(elem ...string) string {
	return strings.TrimPrefix(path.Join(elem...), Separator)
}

// HasDotDot reports whether any segment of p equals "..".
func HasDotDot(p string) bool {
	for _, segment := range strings.Split(p, Separator) {
		if segment == ".." {
			return true
		}
	}

	return false
}

// IsWithin reports whether key equals prefix or lies below it.
func IsWithin(key, prefix string) bool {
	if prefix == "" {
		return true
	}

	return key == prefix || strings.HasPrefix(key, prefix+Separator)
}
