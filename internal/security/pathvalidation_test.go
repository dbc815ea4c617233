package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "2.26.34"), 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"existing subdirectory", filepath.Join(root, "2.26.34"), false},
		{"file not created yet", filepath.Join(root, "2.26.35", "idb.sqlite"), false},
		{"dotdot label", filepath.Join(root, "..", "evil"), true},
		{"absolute escape", "/etc/passwd", true},
		{"root itself", root, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tc.path, root)
			if tc.wantErr && err == nil {
				t.Fatalf("expected rejection of %s", tc.path)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected rejection of %s: %v", tc.path, err)
			}
		})
	}
}

func TestValidatePathWithinDirectorySymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "linked")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if err := ValidatePathWithinDirectory(filepath.Join(link, "idb.sqlite"), root); err == nil {
		t.Fatal("symlinked directory escaping the root was accepted")
	}
}
