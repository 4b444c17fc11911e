//go:build windows

package fsutil

import "golang.org/x/sys/windows"

// replace uses MoveFileEx so an existing destination is overwritten in place and
// the move is flushed before returning.
func replace(src, dst string) error {
	from, err := windows.UTF16PtrFromString(src)
	if err != nil {
		return err
	}
	to, err := windows.UTF16PtrFromString(dst)
	if err != nil {
		return err
	}
	return windows.MoveFileEx(from, to, windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH)
}
