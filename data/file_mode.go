package data

// FileMode represents file type and permission bits.
// It follows Unix file mode conventions.
type FileMode uint32

const (
	// Type bits
	ModeDir FileMode = 1 << 31 // d: directory

	// Permission bits
	ModePerm FileMode = 0777

	// Every entry is presented read-only to the host.
	ModeFileReadOnly FileMode = 0444
	ModeDirReadOnly  FileMode = ModeDir | 0555
)

// IsDir reports whether m describes a directory.
func (m FileMode) IsDir() bool {
	return m&ModeDir != 0
}

// IsRegular reports whether m describes a regular file.
func (m FileMode) IsRegular() bool {
	return m&ModeDir == 0
}

// Perm returns the Unix permission bits in m.
func (m FileMode) Perm() FileMode {
	return m & ModePerm
}

// String returns the mode in ls -l format, e.g. "dr-xr-xr-x".
func (m FileMode) String() string {
	var buf [10]byte

	buf[0] = '-'
	if m.IsDir() {
		buf[0] = 'd'
	}

	const rwx = "rwxrwxrwx"
	for i, c := range rwx {
		if m&(1<<uint(9-1-i)) != 0 {
			buf[i+1] = byte(c)
		} else {
			buf[i+1] = '-'
		}
	}

	return string(buf[:])
}
