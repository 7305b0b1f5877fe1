package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.go", "package p\n\nimport _ \"fmt\"\n")
	writeFile(t, dir, "bad.go", "package p\n\nimport _ \"qctrack/internal/core\"\n")
	writeFile(t, dir, "skip_test.go", "package p\n\nimport _ \"qctrack/internal/grid\"\n")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 {
		t.Fatalf("violations = %v, want one", viols)
	}
	if viols[0] != "qctrack/internal/core (in bad.go)" {
		t.Fatalf("violation = %q", viols[0])
	}
}

func TestModuleImportForbidden(t *testing.T) {
	if !ModuleImportForbidden("qctrack/pkg/domain") || !ModuleImportForbidden("qctrack") {
		t.Fatalf("module paths should match")
	}
	if ModuleImportForbidden("github.com/xuri/excelize/v2") {
		t.Fatalf("third-party path should not match")
	}
}
