// Package csvexport writes a task's leads to a CSV file that the API serves
// under the download prefix.
package csvexport

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/repository"
)

var header = []string{"id", "name", "address", "website", "email", "phone", "category"}

// ExporterImpl stores one file per task in dir.
type ExporterImpl struct {
	dir     string
	baseURL string
}

// NewExporter creates dir if needed. baseURL is the public prefix the files
// are reachable under, e.g. "/download".
func NewExporter(dir, baseURL string) (*ExporterImpl, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create export dir %s: %w", dir, err)
	}
	return &ExporterImpl{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

var _ repository.Exporter = (*ExporterImpl)(nil)

// Export writes the file atomically and returns its public URL.
func (e *ExporterImpl) Export(ctx context.Context, task entity.ScrapeTask) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := task.ID + ".csv"
	tmp, err := os.CreateTemp(e.dir, "."+task.ID+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("could not create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeLeads(tmp, task.Results); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("could not close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(e.dir, name)); err != nil {
		return "", fmt.Errorf("could not publish %s: %w", name, err)
	}

	return e.baseURL + "/" + name, nil
}

func writeLeads(f *os.File, leads []entity.Lead) error {
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, l := range leads {
		if err := w.Write([]string{l.ID, l.Name, l.Address, l.Website, l.Email, l.Phone, l.Category}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
