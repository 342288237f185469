package pipeline

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// ErrMissingArtifact is returned when a stage input has not been produced yet
var ErrMissingArtifact = errors.New("missing artifact")

// producers names the stage that writes each input artifact
var producers = map[string]string{
	report.FileHighRisk:           StageIndicators,
	report.FileDuplicateAddresses: StageIndicators,
	report.FilePriority:           StageDeep,
	report.FilePhoneFacilities:    StageDeep,
	report.FileInvestigationLinks: StageLinks,
}

// Workspace is the directory every stage reads from and writes to
type Workspace struct {
	Dir     string
	Console *report.Console
}

// NewWorkspace creates a workspace printing stage summaries to out
func NewWorkspace(dir string, out io.Writer) *Workspace {
	if out == nil {
		out = io.Discard
	}
	return &Workspace{Dir: dir, Console: report.NewConsole(out)}
}

// Path returns the location of an artifact
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Ensure creates the workspace directory
func (w *Workspace) Ensure() error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace %s: %w", w.Dir, err)
	}
	return nil
}

// Facilities loads the raw registry extracts
func (w *Workspace) Facilities() ([]facility.Facility, error) {
	return facility.LoadWorkspace(w.Dir)
}

// WriteTable saves t under name and announces it on the console
func (w *Workspace) WriteTable(name string, t *report.Table) error {
	path := w.Path(name)
	if err := t.WriteFile(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	w.Console.Saved(t.Len(), path)
	return nil
}

// ReadTable loads an artifact written by an earlier stage
func (w *Workspace) ReadTable(name string) (*report.Table, error) {
	t, err := report.ReadFile(w.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if stage, ok := producers[name]; ok {
				return nil, fmt.Errorf("%w: %s (run %s first)", ErrMissingArtifact, name, stage)
			}
			return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, name)
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return t, nil
}

// Exists reports whether an artifact is present
func (w *Workspace) Exists(name string) bool {
	_, err := os.Stat(w.Path(name))
	return err == nil
}
