package sync

import "os"

// NeedsRefresh reports whether cachedPath must be re-copied from sourcePath.
//
// It returns true when the cached file is missing, when either stat fails,
// or when the modification times differ in either direction. Sizes and
// contents are not compared.
func NeedsRefresh(cachedPath, sourcePath string) bool {
	cached, err := os.Stat(cachedPath)
	if err != nil {
		return true
	}
	source, err := os.Stat(sourcePath)
	if err != nil {
		return true
	}
	return !cached.ModTime().Equal(source.ModTime())
}
