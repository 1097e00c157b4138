package policy

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefault(t *testing.T) {
	p := Default()
	if p.MaxScriptBytes != DefaultMaxScriptBytes {
		t.Fatalf("MaxScriptBytes=%d, want %d", p.MaxScriptBytes, DefaultMaxScriptBytes)
	}
	if p.DefaultFilename != "script.lua" {
		t.Fatalf("DefaultFilename=%q, want script.lua", p.DefaultFilename)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") err=%v", err)
	}
	if !reflect.DeepEqual(p, Policy{MaxScriptBytes: DefaultMaxScriptBytes, DefaultFilename: DefaultFilenameDefault}) {
		t.Fatalf("Load(\"\")=%+v", p)
	}
}

func TestLoad_Document(t *testing.T) {
	doc := "max_script_bytes: 2048\nallowed_extensions: [\".lua\", \".txt\"]\ndefault_filename: main.lua\n"
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if p.MaxScriptBytes != 2048 {
		t.Fatalf("MaxScriptBytes=%d, want 2048", p.MaxScriptBytes)
	}
	if p.DefaultFilename != "main.lua" {
		t.Fatalf("DefaultFilename=%q, want main.lua", p.DefaultFilename)
	}
	if len(p.AllowedExtensions) != 2 {
		t.Fatalf("AllowedExtensions=%v", p.AllowedExtensions)
	}
}

func TestLoad_PartialDocumentKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("max_script_bytes: 64\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if p.MaxScriptBytes != 64 {
		t.Fatalf("MaxScriptBytes=%d, want 64", p.MaxScriptBytes)
	}
	if p.DefaultFilename != DefaultFilenameDefault {
		t.Fatalf("DefaultFilename=%q, want default", p.DefaultFilename)
	}
}

func TestValidate_Rejects(t *testing.T) {
	p := Default()
	p.MaxScriptBytes = 0
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error for zero size bound")
	}

	p = Default()
	p.AllowedExtensions = []string{"lua"}
	if err := p.Validate(); err == nil {
		t.Fatalf("expected error for extension without dot")
	}
}

func TestCheckFilename(t *testing.T) {
	p := Default()
	if err := p.CheckFilename("anything.exe"); err != nil {
		t.Fatalf("open policy rejected %v", err)
	}

	p.AllowedExtensions = []string{".lua"}
	if err := p.CheckFilename("a.lua"); err != nil {
		t.Fatalf("CheckFilename(a.lua) err=%v", err)
	}
	if err := p.CheckFilename("A.LUA"); err != nil {
		t.Fatalf("CheckFilename(A.LUA) err=%v", err)
	}
	if err := p.CheckFilename("a.txt"); err == nil {
		t.Fatalf("expected error for .txt")
	}
}
