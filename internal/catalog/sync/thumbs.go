package sync

import (
	"fmt"

	"github.com/otiai10/copy"
)

// CopyMaterializer copies files with their modification time preserved.
type CopyMaterializer struct{}

// Materialize implements Materializer.
func (CopyMaterializer) Materialize(src, dst string) error {
	opts := copy.Options{
		PreserveTimes: true,
		Sync:          true,
	}
	if err := copy.Copy(src, dst, opts); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}
