package main

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/vainilla/image"
	"github.com/chazu/vainilla/manifest"
	"github.com/chazu/vainilla/store"
)

const countdown = `; prints 3, 2, 1
    LOAD_CONST 3
    STORE_VAR n
loop:
    LOAD_VAR n
    JMPLE done
    LOAD_VAR n
    PRINT
    LOAD_VAR n
    LOAD_CONST 1
    SUB
    STORE_VAR n
    JMP loop
done:
`

func newTestCLI(t *testing.T, dir, input string) (*cli, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	m := manifest.Default(dir)
	empty := ""
	m.Run.Prompt = &empty
	var stdout, stderr bytes.Buffer
	return &cli{
		manifest: m,
		stdin:    bufio.NewReader(strings.NewReader(input)),
		stdout:   &stdout,
		stderr:   &stderr,
	}, &stdout, &stderr
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---------------------------------------------------------------------------
// run / run-stdin / parse
// ---------------------------------------------------------------------------

func TestRun(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "countdown.vm", countdown)
	c, out, _ := newTestCLI(t, dir, "")

	if err := c.dispatch("run", []string{path}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "3\n2\n1\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_ReadsInput(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "double.vm", "READ\nLOAD_CONST 2\nMUL\nPRINT\n")
	c, out, _ := newTestCLI(t, dir, "21\n")

	if err := c.dispatch("run", []string{"-prompt", "> ", path}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "> 42\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_RejectsOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "countdown.txt", countdown)
	c, _, _ := newTestCLI(t, dir, "")

	err := c.dispatch("run", []string{path})
	if !errors.Is(err, errNeedSource) {
		t.Fatalf("err = %v, want errNeedSource", err)
	}
}

func TestRun_ReportsErrors(t *testing.T) {
	dir := t.TempDir()
	c, _, _ := newTestCLI(t, dir, "")

	bad := writeFile(t, dir, "bad.vm", "LOAD_CONST 1\nFROB\n")
	if err := c.dispatch("run", []string{bad}); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("assembly error = %v", err)
	}

	under := writeFile(t, dir, "under.vm", "LOAD_CONST 1\nADD\n")
	if err := c.dispatch("run", []string{under}); err == nil || !strings.Contains(err.Error(), "stack underflow") {
		t.Errorf("runtime error = %v", err)
	}

	if err := c.dispatch("run", nil); err == nil {
		t.Error("run without a file or manifest entry should fail")
	}
}

func TestRun_ManifestEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "countdown.vm", countdown)
	c, out, _ := newTestCLI(t, dir, "")
	c.manifest.Source.Entry = "countdown.vm"

	if err := c.dispatch("run", nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "3\n2\n1\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunStdin(t *testing.T) {
	c, out, _ := newTestCLI(t, t.TempDir(), "LOAD_CONST 2.5\nLOAD_CONST 2\nMUL\nPRINT\n")

	if err := c.dispatch("run-stdin", nil); err != nil {
		t.Fatalf("run-stdin: %v", err)
	}
	if out.String() != "5\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestParse(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "countdown.vm", countdown)
	c, out, _ := newTestCLI(t, dir, "")

	if err := c.dispatch("parse", []string{path}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 11 {
		t.Fatalf("got %d lines, want 11:\n%s", len(lines), out.String())
	}
	if !strings.HasSuffix(lines[3], "JMPLE @11") {
		t.Errorf("line 3 = %q", lines[3])
	}

	out.Reset()
	if err := c.dispatch("parse", []string{"-raw", path}); err != nil {
		t.Fatalf("parse -raw: %v", err)
	}
	if !strings.Contains(out.String(), "vm.Instruction{") {
		t.Errorf("raw dump = %q", out.String())
	}
}

// ---------------------------------------------------------------------------
// Debugger
// ---------------------------------------------------------------------------

func TestDebugger(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "countdown.vm", countdown)
	c, out, _ := newTestCLI(t, dir, "1\n1\n3\n4\n9\n2\n5\n")

	if err := c.dispatch("run", []string{"-debug", path}); err != nil {
		t.Fatalf("debug: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"Current instruction: 0000  LOAD_CONST 3",
		"Next instruction: 0001  STORE_VAR n",
		"Index | Value",
		"Variable   | Value",
		"n          | 3",
		"Invalid option, please try again.",
		"3\n2\n1\n",
		"Program finished.",
		"Exiting debugger.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("debugger output missing %q", want)
		}
	}
}

func TestDebugger_ContinuesAfterError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.vm", "LOAD_VAR x\nPRINT\n")
	c, out, _ := newTestCLI(t, dir, "1\n3\n")

	if err := c.dispatch("run", []string{"-debug", path}); err != nil {
		t.Fatalf("debug: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Error: ") || !strings.Contains(got, "variable not found") {
		t.Errorf("missing runtime error in %q", got)
	}
	if !strings.Contains(got, "Next instruction: 0000  LOAD_VAR x") {
		t.Errorf("faulting instruction should stay current: %q", got)
	}
}

func TestPrintStack(t *testing.T) {
	var out bytes.Buffer
	printStack(&out, nil)
	want := "Index | Value     \n---------------------\n"
	if out.String() != want {
		t.Errorf("empty stack table = %q, want %q", out.String(), want)
	}
}

// ---------------------------------------------------------------------------
// build / store
// ---------------------------------------------------------------------------

func TestBuildAndStore(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "countdown.vm", countdown)
	c, out, _ := newTestCLI(t, dir, "")

	if err := c.dispatch("build", []string{"-store", "-source", path}); err != nil {
		t.Fatalf("build: %v", err)
	}
	imgPath := filepath.Join(dir, "countdown.vmi")
	img, err := image.Load(imgPath)
	if err != nil {
		t.Fatalf("load built image: %v", err)
	}
	if img.Name != "countdown" || img.Source != countdown || img.Len() != 11 {
		t.Errorf("image name=%q len=%d source embedded=%v", img.Name, img.Len(), img.Source != "")
	}
	if !strings.Contains(out.String(), "Stored "+img.Hash.String()[:12]) {
		t.Errorf("build output = %q", out.String())
	}

	out.Reset()
	if err := c.dispatch("run", []string{imgPath}); err != nil {
		t.Fatalf("run image: %v", err)
	}
	if out.String() != "3\n2\n1\n" {
		t.Errorf("image output = %q", out.String())
	}

	out.Reset()
	if err := c.dispatch("store", []string{"list"}); err != nil {
		t.Fatalf("store list: %v", err)
	}
	if !strings.Contains(out.String(), img.Hash.String()[:12]) || !strings.Contains(out.String(), "countdown") {
		t.Errorf("store list = %q", out.String())
	}

	out.Reset()
	if err := c.dispatch("store", []string{"run", "countdown"}); err != nil {
		t.Fatalf("store run by name: %v", err)
	}
	if out.String() != "3\n2\n1\n" {
		t.Errorf("store run output = %q", out.String())
	}

	out.Reset()
	if err := c.dispatch("store", []string{"show", img.Hash.String()[:8]}); err != nil {
		t.Fatalf("store show: %v", err)
	}
	if !strings.Contains(out.String(), "JMPLE L11") {
		t.Errorf("store show = %q", out.String())
	}

	if err := c.dispatch("store", []string{"rm", img.Hash.String()[:8]}); err != nil {
		t.Fatalf("store rm: %v", err)
	}
	err = c.dispatch("store", []string{"run", img.Hash.String()[:8]})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("run after rm: err = %v, want ErrNotFound", err)
	}
}

func TestBuild_OutputFlagWithoutSource(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "countdown.vm", countdown)
	c, _, _ := newTestCLI(t, dir, "")

	out := filepath.Join(dir, "out", "prog.vmi")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := c.dispatch("build", []string{"-o", out, "-name", "prog", path}); err != nil {
		t.Fatalf("build: %v", err)
	}
	img, err := image.Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if img.Name != "prog" || img.Source != "" {
		t.Errorf("name=%q source=%q", img.Name, img.Source)
	}
}

func TestStorePut(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hello.vm", "LOAD_CONST 7\nPRINT\n")
	c, out, _ := newTestCLI(t, dir, "")

	if err := c.dispatch("store", []string{"put", path}); err != nil {
		t.Fatalf("store put: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(out.String()), " hello") {
		t.Errorf("put output = %q", out.String())
	}

	if err := c.dispatch("store", []string{"put", filepath.Join(dir, "hello.txt")}); !errors.Is(err, errNeedSource) {
		t.Errorf("put .txt: err = %v", err)
	}
	if err := c.dispatch("store", []string{"frob"}); err == nil {
		t.Error("unknown store subcommand should fail")
	}
}

func TestNewServerLimits(t *testing.T) {
	if _, err := newServer(-time.Second, time.Minute, 0); err == nil {
		t.Error("negative timeout should be rejected")
	}
	if _, err := newServer(time.Second, -time.Minute, 0); err == nil {
		t.Error("negative session ttl should be rejected")
	}
	for _, ttl := range []time.Duration{0, 5 * time.Nanosecond, time.Minute} {
		srv, err := newServer(0, ttl, 0)
		if err != nil {
			t.Fatalf("newServer(ttl=%s): %v", ttl, err)
		}
		srv.Stop()
	}
}

func TestUnknownCommand(t *testing.T) {
	c, _, _ := newTestCLI(t, t.TempDir(), "")
	if err := c.dispatch("frobnicate", nil); err == nil {
		t.Error("unknown command should fail")
	}
}
