package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Workspace owns the local scratch and output directories of a job run.
// Finished artifacts only ever appear in the output directory complete:
// publishing writes to a hidden partial file and renames it into place.
type Workspace struct {
	workDir   string
	outputDir string
}

// NewWorkspace creates both directories if needed.
func NewWorkspace(workDir, outputDir string) (*Workspace, error) {
	for _, dir := range []string{workDir, outputDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return &Workspace{workDir: workDir, outputDir: outputDir}, nil
}

// WorkDir returns the scratch root.
func (w *Workspace) WorkDir() string { return w.workDir }

// OutputDir returns the final artifact directory.
func (w *Workspace) OutputDir() string { return w.outputDir }

// JobDir creates and returns a scratch directory scoped to one job.
func (w *Workspace) JobDir(jobID string) (string, error) {
	dir := filepath.Join(w.workDir, jobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating job directory: %w", err)
	}
	return dir, nil
}

// CleanupJob removes a job's scratch directory.
func (w *Workspace) CleanupJob(jobID string) error {
	return os.RemoveAll(filepath.Join(w.workDir, jobID))
}

// Publish moves src into the output directory under name. The copy lands in
// a partial file first; the final name appears only via rename, which is
// atomic on the same filesystem.
func (w *Workspace) Publish(src, name string) (string, error) {
	final := filepath.Join(w.outputDir, name)
	partial := filepath.Join(w.outputDir, "."+name+".partial")

	if err := copyFile(src, partial); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("publishing %s: %w", name, err)
	}
	if err := os.Rename(partial, final); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("publishing %s: %w", name, err)
	}
	return final, nil
}

// OutputName derives the published artifact name from the input file:
// the stem gains a -processed suffix, the extension survives.
func OutputName(inputPath string) string {
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	return stem + "-processed" + ext
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
