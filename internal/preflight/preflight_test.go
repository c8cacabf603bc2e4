package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"vigil/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("Save directory", t.TempDir())
	if !result.Passed {
		t.Fatalf("accessible directory failed the check: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("Save directory", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("missing directory passed the check")
	}
	if result.Detail == "" {
		t.Fatal("failed check carries no detail for the operator")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "autosave.v3")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("Save directory", f)
	if result.Passed {
		t.Fatal("plain file passed a directory check")
	}
}

func TestCheckWritableFile_Existing(t *testing.T) {
	f := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(f, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckWritableFile("Tracking state", f)
	if !result.Passed {
		t.Fatalf("writable file failed the check: %s", result.Detail)
	}
}

func TestCheckWritableFile_Missing(t *testing.T) {
	result := CheckWritableFile("Tracking state", filepath.Join(t.TempDir(), "state.json"))
	if !result.Passed {
		t.Fatalf("creatable file failed the check: %s", result.Detail)
	}
}

func TestCheckWritableFile_ParentMissing(t *testing.T) {
	result := CheckWritableFile("Tracking state", filepath.Join(t.TempDir(), "nope", "state.json"))
	if result.Passed {
		t.Fatal("file under a missing parent passed the check")
	}
}

func TestCheckWritableFile_Directory(t *testing.T) {
	result := CheckWritableFile("Tracking state", t.TempDir())
	if result.Passed {
		t.Fatal("directory passed a file check")
	}
}

func TestCheckMelter_Found(t *testing.T) {
	result := CheckMelter(os.Args[0])
	if !result.Passed {
		t.Fatalf("resolvable binary failed the check: %s", result.Detail)
	}
	if !result.Optional {
		t.Fatal("melter check must stay optional")
	}
}

func TestCheckMelter_Missing(t *testing.T) {
	result := CheckMelter("vigil-melter-that-does-not-exist")
	if result.Passed {
		t.Fatal("unresolvable binary passed the check")
	}
	if !result.Optional {
		t.Fatal("melter check must stay optional")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(nil)
	if results != nil {
		t.Fatalf("nil config produced results: %#v", results)
	}
}

func TestRunAll_ReadyConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.SaveDir = t.TempDir()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Extraction.MelterBinary = os.Args[0]

	results := RunAll(&cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}
