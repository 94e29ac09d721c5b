package artifact

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RelocateError reports a failed move of a resolved artifact, with both
// paths for diagnostics.
type RelocateError struct {
	Src string
	Dst string
	Err error
}

func (e *RelocateError) Error() string {
	return fmt.Sprintf("relocate artifact %s -> %s: %v", e.Src, e.Dst, e.Err)
}

func (e *RelocateError) Unwrap() error { return e.Err }

// StableRef locates a finalized artifact in the stable output directory.
type StableRef struct {
	Path     string
	Filename string
}

// Relocator moves resolved artifacts out of the engine's shared directory
// into the application-owned stable directory, exactly once per job.
type Relocator struct {
	stableDir string
}

// NewRelocator creates a relocator targeting stableDir.
func NewRelocator(stableDir string) *Relocator {
	return &Relocator{stableDir: stableDir}
}

// Relocate moves (never copies-and-leaves) the source file under a
// collision-resistant name. The engine's own filename is never reused:
// concurrent jobs can produce colliding names in the shared directory.
func (r *Relocator) Relocate(ref Ref) (StableRef, error) {
	if err := os.MkdirAll(r.stableDir, 0o755); err != nil {
		return StableRef{}, &RelocateError{Src: ref.Path, Dst: r.stableDir, Err: err}
	}

	name := stableName(ref.Path)
	dst := filepath.Join(r.stableDir, name)

	if err := os.Rename(ref.Path, dst); err != nil {
		// Rename fails across volumes; fall back to copy-verify-remove.
		if err := copyMove(ref.Path, dst); err != nil {
			return StableRef{}, &RelocateError{Src: ref.Path, Dst: dst, Err: err}
		}
	}

	return StableRef{Path: dst, Filename: name}, nil
}

// stableName is timestamp + randomness + the source extension.
func stableName(src string) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	ext := strings.ToLower(filepath.Ext(src))
	if ext == "" {
		ext = ".png"
	}
	return time.Now().Format("20060102_150405") + "_" + hex.EncodeToString(buf[:]) + ext
}

// copyMove copies src to dst, verifies the size, then removes src. A
// partial destination is cleaned up before the error is surfaced.
func copyMove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	written, copyErr := io.Copy(out, in)
	if err := out.Close(); copyErr == nil {
		copyErr = err
	}
	if copyErr == nil && written != srcInfo.Size() {
		copyErr = fmt.Errorf("short copy: %d of %d bytes", written, srcInfo.Size())
	}
	if copyErr != nil {
		os.Remove(dst)
		return copyErr
	}

	if err := os.Remove(src); err != nil {
		// The move must drain the shared directory; a lingering source
		// would be re-resolved by a later scan.
		os.Remove(dst)
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}
