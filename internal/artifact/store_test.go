package artifact

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	base := t.TempDir()
	s, err := NewStore(
		filepath.Join(base, "uploads"),
		filepath.Join(base, "results"),
		filepath.Join(base, "masks"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestNewStoreCreatesDirectories(t *testing.T) {
	s := newTestStore(t)
	for _, dir := range []string{s.UploadsDir(), s.ResultsDir(), s.masksDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("missing directory %s: %v", dir, err)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"grandma.jpg", "grandma.jpg"},
		{"old family photo", "old_family_photo"},
		{"été à Paris!", "ete_a_Paris"},
		{"a   b///c", "a_b_c"},
		{"__trimmed__", "trimmed"},
		{"___", "photo"},
		{"", "photo"},
		{"safe-name_1.png", "safe-name_1.png"},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStepOutputPath(t *testing.T) {
	s := newTestStore(t)
	path := s.StepOutputPath("été 1950.jpg", "crop", "abcdef123456")
	if filepath.Dir(path) != s.ResultsDir() {
		t.Errorf("output outside results dir: %s", path)
	}
	if got := filepath.Base(path); got != "ete_1950_crop_abcdef.png" {
		t.Errorf("unexpected output name: %q", got)
	}

	// Short job ids are used whole.
	path = s.StepOutputPath("x.png", "upscale", "ab")
	if got := filepath.Base(path); got != "x_upscale_ab.png" {
		t.Errorf("unexpected output name: %q", got)
	}
}

func TestNewUploadName(t *testing.T) {
	s := newTestStore(t)
	a := s.NewUploadName(".JPG")
	b := s.NewUploadName(".jpg")
	if !strings.HasSuffix(a, ".jpg") {
		t.Errorf("extension not lowered: %q", a)
	}
	if a == b {
		t.Error("upload names must be unique")
	}
	if s.UploadPath(a) != filepath.Join(s.UploadsDir(), a) {
		t.Error("upload path mismatch")
	}
	// Path traversal in a filename is flattened away.
	if got := s.UploadPath("../../etc/passwd"); got != filepath.Join(s.UploadsDir(), "passwd") {
		t.Errorf("traversal not stripped: %q", got)
	}
}

func TestSaveMaskDataURL(t *testing.T) {
	s := newTestStore(t)
	payload := base64.StdEncoding.EncodeToString([]byte("mask-bytes"))

	path, err := s.SaveMaskDataURL("data:image/png;base64," + payload)
	if err != nil {
		t.Fatalf("save mask: %v", err)
	}
	if filepath.Dir(path) != s.UploadsDir() {
		t.Errorf("mask outside uploads: %s", path)
	}
	if !strings.HasPrefix(filepath.Base(path), "mask_") {
		t.Errorf("unexpected mask name: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "mask-bytes" {
		t.Errorf("mask content mismatch: %q, %v", data, err)
	}
}

func TestSaveMaskDataURLRejectsGarbage(t *testing.T) {
	s := newTestStore(t)
	for _, in := range []string{
		"not-a-data-url",
		"data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("x")),
		"data:image/png;base64,%%%invalid%%%",
	} {
		if _, err := s.SaveMaskDataURL(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestURLMapping(t *testing.T) {
	s := newTestStore(t)

	up := filepath.Join(s.UploadsDir(), "a.png")
	res := filepath.Join(s.ResultsDir(), "b.png")
	if got := s.URLFor(up); got != "/uploads/a.png" {
		t.Errorf("upload URL: %q", got)
	}
	if got := s.URLFor(res); got != "/results/b.png" {
		t.Errorf("result URL: %q", got)
	}
	if got := s.URLFor("/etc/passwd"); got != "" {
		t.Errorf("outside path must map to nothing, got %q", got)
	}

	if p, ok := s.PathFor("/uploads/a.png"); !ok || p != up {
		t.Errorf("PathFor upload: %q %v", p, ok)
	}
	if p, ok := s.PathFor("/results/b.png"); !ok || p != res {
		t.Errorf("PathFor result: %q %v", p, ok)
	}
	if _, ok := s.PathFor("/static/a.png"); ok {
		t.Error("foreign prefix must not resolve")
	}
	// Traversal inside a served URL collapses to the bare filename.
	if p, ok := s.PathFor("/uploads/../../etc/passwd"); !ok || p != filepath.Join(s.UploadsDir(), "passwd") {
		t.Errorf("traversal not stripped: %q %v", p, ok)
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	path := s.UploadPath("x.png")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still present")
	}
	if err := s.Remove(path); err != nil {
		t.Errorf("removing a missing file must not error: %v", err)
	}
	if err := s.Remove(""); err != nil {
		t.Errorf("empty path must be a no-op: %v", err)
	}
}

func TestCopy(t *testing.T) {
	s := newTestStore(t)
	src := filepath.Join(s.ResultsDir(), "src.png")
	if err := os.WriteFile(src, []byte("artifact-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := s.UploadPath("dst.png")
	if err := s.Copy(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "artifact-bytes" {
		t.Errorf("copy content mismatch: %q, %v", data, err)
	}
	if err := s.Copy(filepath.Join(s.ResultsDir(), "missing.png"), dst); err == nil {
		t.Error("copying a missing source must error")
	}
}
