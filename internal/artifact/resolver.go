package artifact

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/genstudio/server/internal/comfy"
)

// recognizedExts are the output formats this system will claim.
var recognizedExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".mp4":  true,
	".webm": true,
}

// snapshotCap bounds the directory listing attached to NoArtifactError.
const snapshotCap = 50

// Ref locates one resolved output file in the engine's shared directory.
type Ref struct {
	Path      string
	Filename  string
	Subfolder string
	Kind      string // the engine's storage class, e.g. "output"
	ModTime   time.Time
}

// NoArtifactError: both the structured index and the directory scan came
// up empty. Carries a directory snapshot so operators can spot a
// misconfigured shared path.
type NoArtifactError struct {
	PromptID string
	Dir      string
	Snapshot []string
}

func (e *NoArtifactError) Error() string {
	return fmt.Sprintf("no artifact produced for prompt %s in %s (%d files seen: %s)",
		e.PromptID, e.Dir, len(e.Snapshot), strings.Join(e.Snapshot, ", "))
}

// HistoryQuerier is the slice of the engine client the resolver needs.
type HistoryQuerier interface {
	History(ctx context.Context, promptID string) ([]comfy.ImageRef, error)
}

// FS abstracts the filesystem operations so tests can observe whether the
// scan path ran.
type FS interface {
	WalkDir(root string, fn fs.WalkDirFunc) error
	Stat(path string) (fs.FileInfo, error)
}

type osFS struct{}

func (osFS) WalkDir(root string, fn fs.WalkDirFunc) error { return filepath.WalkDir(root, fn) }
func (osFS) Stat(path string) (fs.FileInfo, error)        { return os.Stat(path) }

// Resolver determines which files in the shared output directory
// constitute a job's result: the history index first, falling back to a
// submission-time mtime-threshold scan.
type Resolver struct {
	history   HistoryQuerier
	sharedDir string
	fs        FS
}

// NewResolver creates a resolver over the engine's shared output dir.
func NewResolver(history HistoryQuerier, sharedDir string) *Resolver {
	return &Resolver{history: history, sharedDir: sharedDir, fs: osFS{}}
}

// Resolve returns the job's output files, most recently modified first.
// since is the job's submission instant; the scan fallback only considers
// files modified at or after it, which stays sound when concurrent jobs
// share the directory (a before/after set diff does not).
func (r *Resolver) Resolve(ctx context.Context, promptID string, since time.Time) ([]Ref, error) {
	if refs := r.fromIndex(ctx, promptID); len(refs) > 0 {
		return refs, nil
	}

	refs, err := r.scanSince(since)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, &NoArtifactError{
			PromptID: promptID,
			Dir:      r.sharedDir,
			Snapshot: r.snapshot(),
		}
	}
	return refs, nil
}

func (r *Resolver) fromIndex(ctx context.Context, promptID string) []Ref {
	images, err := r.history.History(ctx, promptID)
	if err != nil {
		log.Warn().Err(err).Str("prompt_id", promptID).Msg("history index unavailable, falling back to directory scan")
		return nil
	}

	var refs []Ref
	for _, img := range images {
		if !recognizedExts[strings.ToLower(filepath.Ext(img.Filename))] {
			continue
		}
		ref := Ref{
			Path:      filepath.Join(r.sharedDir, img.Subfolder, img.Filename),
			Filename:  img.Filename,
			Subfolder: img.Subfolder,
			Kind:      img.Type,
		}
		if info, err := r.fs.Stat(ref.Path); err == nil {
			ref.ModTime = info.ModTime()
		}
		refs = append(refs, ref)
	}
	sortNewestFirst(refs)
	return refs
}

func (r *Resolver) scanSince(since time.Time) ([]Ref, error) {
	var refs []Ref
	err := r.fs.WalkDir(r.sharedDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !recognizedExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(since) {
			return nil
		}
		rel, _ := filepath.Rel(r.sharedDir, path)
		refs = append(refs, Ref{
			Path:      path,
			Filename:  filepath.Base(path),
			Subfolder: filepath.Dir(rel),
			Kind:      "output",
			ModTime:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan shared output dir %s: %w", r.sharedDir, err)
	}
	sortNewestFirst(refs)
	return refs, nil
}

func (r *Resolver) snapshot() []string {
	var names []string
	_ = r.fs.WalkDir(r.sharedDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if len(names) >= snapshotCap {
			return fs.SkipAll
		}
		rel, _ := filepath.Rel(r.sharedDir, path)
		names = append(names, rel)
		return nil
	})
	sort.Strings(names)
	return names
}

func sortNewestFirst(refs []Ref) {
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].ModTime.After(refs[j].ModTime)
	})
}
