package tablefile

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// Stage output base names.
const (
	CleanedName   = "cleaned_scale_data"
	EnrichedName  = "cleaned_data_with_weather_and_cartographic_data"
	SegmentedName = "segmented_data"
)

// DirSource loads the raw provider exports dropped into a directory.
// It implements pipeline.RawSource.
type DirSource struct {
	dir    string
	logger *slog.Logger
}

// NewDirSource creates a source over every file in dir.
func NewDirSource(dir string, logger *slog.Logger) *DirSource {
	return &DirSource{dir: dir, logger: logger}
}

// LoadRaw combines the files of the directory and decodes them as raw readings.
func (s *DirSource) LoadRaw(ctx context.Context) ([]domain.RawReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := LoadDir(s.dir, s.logger)
	if err != nil {
		return nil, err
	}
	return RawReadings(t)
}

// Artifacts writes the table produced by each stage into an output directory.
// It implements pipeline.ArtifactWriter.
type Artifacts struct {
	dir    string
	format Format
	logger *slog.Logger
}

// NewArtifacts creates a writer of stage tables in the given format.
func NewArtifacts(dir string, format Format, logger *slog.Logger) *Artifacts {
	return &Artifacts{dir: dir, format: format, logger: logger}
}

// Path returns the output path of a stage table.
func (a *Artifacts) Path(name string) string {
	return filepath.Join(a.dir, name+a.format.Ext())
}

func (a *Artifacts) WriteCleaned(rows []domain.Reading) error {
	return a.write(CleanedName, ReadingsTable(rows))
}

func (a *Artifacts) WriteEnriched(rows []domain.EnrichedRow) error {
	return a.write(EnrichedName, EnrichedTable(rows))
}

func (a *Artifacts) WriteSegmented(rows []domain.SegmentRow) error {
	return a.write(SegmentedName, SegmentTable(rows))
}

func (a *Artifacts) write(name string, t Table) error {
	path := a.Path(name)
	if err := WriteFile(path, t); err != nil {
		return err
	}
	a.logger.Info("table written", "path", path, "rows", len(t.Rows))
	return nil
}
