//go:build !windows

package fsutil

import "os"

func replace(src, dst string) error {
	return os.Rename(src, dst)
}
