package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go-customer-intel/internal/errors"
)

// OutputManager handles output file organization and path management
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// CreateRunOutputDir creates the directory holding one run's outputs
func (om *OutputManager) CreateRunOutputDir(runID string) (string, error) {
	runDir := filepath.Join(om.BaseOutputDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create output directory for run %s", runID)
	}

	return runDir, nil
}

// ResolveFile returns the path of an existing output file, refusing names
// that would escape the output directory.
func (om *OutputManager) ResolveFile(runID, fileName string) (string, error) {
	if runID != filepath.Base(runID) || fileName != filepath.Base(fileName) || strings.HasPrefix(fileName, ".") {
		return "", errors.InvalidParameter("invalid output file name %q", fileName)
	}
	path := filepath.Join(om.BaseOutputDir, runID, fileName)
	info, err := os.Stat(path)
	if os.IsNotExist(err) || (err == nil && info.IsDir()) {
		return "", errors.NotFound("output %s/%s not found", runID, fileName)
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to stat output file")
	}
	return path, nil
}

// GetDownloadURL generates a download URL for a file
func (om *OutputManager) GetDownloadURL(runID, fileName string) string {
	cleanFileName := filepath.Base(fileName)
	return fmt.Sprintf("/api/v1/exports/%s/%s", runID, cleanFileName)
}

// GetFileType determines the file type based on extension
func (om *OutputManager) GetFileType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".xlsx", ".xls":
		return "excel"
	case ".html":
		return "html"
	case ".db":
		return "sqlite"
	default:
		return "unknown"
	}
}

// OutputFile describes one generated file
type OutputFile struct {
	RunID       string    `json:"run_id"`
	Filename    string    `json:"filename"`
	Type        string    `json:"type"`
	SizeBytes   int64     `json:"size_bytes"`
	Modified    time.Time `json:"modified"`
	DownloadURL string    `json:"download_url"`
}

// ListOutputs walks every run directory and returns its files, newest first.
func (om *OutputManager) ListOutputs() ([]OutputFile, error) {
	runs, err := os.ReadDir(om.BaseOutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read output directory")
	}

	var files []OutputFile
	for _, run := range runs {
		if !run.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(om.BaseOutputDir, run.Name()))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			info, err := e.Info()
			if err != nil || e.IsDir() {
				continue
			}
			files = append(files, OutputFile{
				RunID:       run.Name(),
				Filename:    e.Name(),
				Type:        om.GetFileType(e.Name()),
				SizeBytes:   info.Size(),
				Modified:    info.ModTime(),
				DownloadURL: om.GetDownloadURL(run.Name(), e.Name()),
			})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Modified.After(files[j].Modified) })
	return files, nil
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}

// TimestampedFilename builds names like report_20240131_150405.html
func TimestampedFilename(prefix, ext string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, at.Format("20060102_150405"), strings.TrimPrefix(ext, "."))
}
