package artifact

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// URL prefixes under which artifacts are served.
const (
	UploadsPrefix = "/uploads/"
	ResultsPrefix = "/results/"
)

// Store owns the artifact directories: uploads (source photos and masks),
// results (stage outputs) and masks (reserved for the bootstrap
// collaborator). All directories are created on start.
type Store struct {
	uploadsDir string
	resultsDir string
	masksDir   string
}

func NewStore(uploadsDir, resultsDir, masksDir string) (*Store, error) {
	s := &Store{}
	for _, d := range []struct {
		in  string
		out *string
	}{
		{uploadsDir, &s.uploadsDir},
		{resultsDir, &s.resultsDir},
		{masksDir, &s.masksDir},
	} {
		abs, err := filepath.Abs(d.in)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", d.in, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", abs, err)
		}
		*d.out = abs
	}
	return s, nil
}

func (s *Store) UploadsDir() string { return s.uploadsDir }
func (s *Store) ResultsDir() string { return s.resultsDir }

// NewUploadName returns a fresh opaque filename for an upload with the
// given extension (".jpg", ".png", ...).
func (s *Store) NewUploadName(ext string) string {
	return uuid.NewString() + strings.ToLower(ext)
}

// UploadPath resolves an opaque upload filename to its absolute path.
func (s *Store) UploadPath(filename string) string {
	return filepath.Join(s.uploadsDir, filepath.Base(filename))
}

// ResultPath resolves a result filename to its absolute path.
func (s *Store) ResultPath(filename string) string {
	return filepath.Join(s.resultsDir, filepath.Base(filename))
}

// StepOutputPath builds the absolute output path for one stage run:
// results/<sanitized-photo-name>_<stage-prefix>_<job-short>.png
func (s *Store) StepOutputPath(photoName, stagePrefix, jobID string) string {
	base := strings.TrimSuffix(photoName, filepath.Ext(photoName))
	short := jobID
	if len(short) > 6 {
		short = short[:6]
	}
	name := fmt.Sprintf("%s_%s_%s.png", SanitizeName(base), stagePrefix, short)
	return filepath.Join(s.resultsDir, name)
}

// SaveMaskDataURL decodes a base64 PNG data URL and writes it to a fresh
// mask file under uploads. Returns the absolute path of the written file.
func (s *Store) SaveMaskDataURL(dataURL string) (string, error) {
	idx := strings.Index(dataURL, "base64,")
	if !strings.HasPrefix(dataURL, "data:image/") || idx < 0 {
		return "", fmt.Errorf("mask is not a base64 image data URL")
	}
	raw, err := base64.StdEncoding.DecodeString(dataURL[idx+len("base64,"):])
	if err != nil {
		return "", fmt.Errorf("failed to decode mask: %w", err)
	}
	id := uuid.New()
	path := filepath.Join(s.uploadsDir, fmt.Sprintf("mask_%x.png", id[:4]))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write mask: %w", err)
	}
	return path, nil
}

// URLFor maps an absolute artifact path to its public URL, or "" when the
// path lies outside the served directories.
func (s *Store) URLFor(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	switch dir {
	case s.uploadsDir:
		return UploadsPrefix + base
	case s.resultsDir:
		return ResultsPrefix + base
	}
	return ""
}

// PathFor maps a public artifact URL back to an absolute path. The second
// return is false for URLs outside the two served prefixes.
func (s *Store) PathFor(url string) (string, bool) {
	switch {
	case strings.HasPrefix(url, UploadsPrefix):
		return filepath.Join(s.uploadsDir, filepath.Base(url)), true
	case strings.HasPrefix(url, ResultsPrefix):
		return filepath.Join(s.resultsDir, filepath.Base(url)), true
	}
	return "", false
}

// Remove deletes an artifact file; a missing file is not an error.
func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Copy duplicates src into dst (used by result import).
func (s *Store) Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

var (
	deaccent   = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	unsafeRuns = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	underRuns  = regexp.MustCompile(`_+`)
)

// SanitizeName makes a display name safe for artifact filenames: strips
// diacritics, replaces anything outside [A-Za-z0-9._-] with underscores,
// collapses runs and trims the ends.
func SanitizeName(name string) string {
	out, _, err := transform.String(deaccent, name)
	if err != nil {
		out = name
	}
	out = unsafeRuns.ReplaceAllString(out, "_")
	out = underRuns.ReplaceAllString(out, "_")
	out = strings.Trim(out, "_")
	if out == "" {
		return "photo"
	}
	return out
}
