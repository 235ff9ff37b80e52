package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "countdown"
version = "0.1.0"

[source]
entry = "src/main.vm"

[image]
output = "build/countdown.vmi"
include-source = true

[run]
prompt = "n> "
trace = true

[store]
path = "/var/lib/vainilla/images.db"

[server]
addr = "127.0.0.1:9000"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "countdown" {
		t.Errorf("project name = %q, want countdown", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Source.Entry != "src/main.vm" {
		t.Errorf("source entry = %q, want src/main.vm", m.Source.Entry)
	}
	if !m.Image.IncludeSource {
		t.Error("image include-source = false, want true")
	}
	if m.Prompt() != "n> " || !m.Run.Trace {
		t.Errorf("run = %q trace=%v", m.Prompt(), m.Run.Trace)
	}
	if m.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("server addr = %q", m.Server.Addr)
	}

	absDir, _ := filepath.Abs(dir)
	if m.EntryPath() != filepath.Join(absDir, "src", "main.vm") {
		t.Errorf("EntryPath = %q", m.EntryPath())
	}
	if m.ImagePath() != filepath.Join(absDir, "build", "countdown.vmi") {
		t.Errorf("ImagePath = %q", m.ImagePath())
	}
	if m.StorePath() != "/var/lib/vainilla/images.db" {
		t.Errorf("absolute StorePath rewritten to %q", m.StorePath())
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[source]
entry = "hello.vm"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Prompt() != DefaultPrompt {
		t.Errorf("prompt = %q, want %q", m.Prompt(), DefaultPrompt)
	}
	if m.Store.Path != DefaultStorePath {
		t.Errorf("store path = %q, want %q", m.Store.Path, DefaultStorePath)
	}
	if m.Server.Addr != DefaultAddr {
		t.Errorf("server addr = %q, want %q", m.Server.Addr, DefaultAddr)
	}
	if m.Image.Output != "hello.vmi" {
		t.Errorf("image output = %q, want hello.vmi", m.Image.Output)
	}
	if m.Name() != "hello" {
		t.Errorf("Name = %q, want hello", m.Name())
	}
}

func TestEmptyPromptDisablesPrompt(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[run]\nprompt = \"\"\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.Prompt() != "" {
		t.Errorf("prompt = %q, want empty", m.Prompt())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[run]\npromt = \"> \"\n")

	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "run.promt") {
		t.Errorf("Load error = %v, want unknown key run.promt", err)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of missing manifest succeeded")
	}

	dir := t.TempDir()
	writeManifest(t, dir, "[project\nname = 1")
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "parse error") {
		t.Errorf("Load error = %v, want parse error", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"walk\"\n")

	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "walk" {
		t.Errorf("project name = %q, want walk", m.Project.Name)
	}
	absRoot, _ := filepath.Abs(root)
	if m.Dir != absRoot {
		t.Errorf("Dir = %q, want %q", m.Dir, absRoot)
	}
}

func TestFindAndLoadNoManifest(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest, got %+v", m)
	}
}

func TestDefault(t *testing.T) {
	m := Default("/work")
	if m.Prompt() != DefaultPrompt || m.StorePath() != filepath.Join("/work", DefaultStorePath) {
		t.Errorf("Default = %+v", m)
	}
	if m.EntryPath() != "" || m.ImagePath() != "" {
		t.Error("Default has entry or image paths")
	}
	if m.Name() != "work" {
		t.Errorf("Name = %q, want work", m.Name())
	}
}
