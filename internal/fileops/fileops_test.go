package fileops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	return NewHandler(t.TempDir(), nil)
}

func TestApply_CreateNewFile(t *testing.T) {
	h := newTestHandler(t)

	msg, err := h.Apply(Edit{Path: "notes.md", Content: "hello\n", Mode: ModeCreate})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.Contains(msg, "notes.md") {
		t.Errorf("msg = %q", msg)
	}

	data, err := os.ReadFile(filepath.Join(h.Dir, "notes.md"))
	if err != nil || string(data) != "hello\n" {
		t.Errorf("content = %q, err = %v", data, err)
	}
}

func TestApply_CreateMakesParentDirs(t *testing.T) {
	h := newTestHandler(t)

	if _, err := h.Apply(Edit{Path: "a/b/c.txt", Content: "x"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.Dir, "a", "b", "c.txt")); err != nil {
		t.Errorf("nested file missing: %v", err)
	}
}

func TestApply_OverwriteNeedsConfirmation(t *testing.T) {
	h := newTestHandler(t)
	path := filepath.Join(h.Dir, "keep.txt")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	// No Confirm callback: must refuse.
	if _, err := h.Apply(Edit{Path: "keep.txt", Content: "new"}); err == nil {
		t.Fatal("overwrite without confirmation should fail")
	}
	if data, _ := os.ReadFile(path); string(data) != "original" {
		t.Errorf("file was modified: %q", data)
	}

	// Declined.
	h.Confirm = func(string) bool { return false }
	if _, err := h.Apply(Edit{Path: "keep.txt", Content: "new"}); err == nil {
		t.Fatal("declined overwrite should fail")
	}

	// Accepted: overwrite and leave a backup behind.
	h.Confirm = func(string) bool { return true }
	if _, err := h.Apply(Edit{Path: "keep.txt", Content: "new"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "new" {
		t.Errorf("content = %q", data)
	}
	backups, _ := os.ReadDir(h.BackupDir)
	if len(backups) != 1 {
		t.Errorf("backups = %d, want 1", len(backups))
	}
}

func TestApply_AppendAndPrepend(t *testing.T) {
	h := newTestHandler(t)
	if _, err := h.Apply(Edit{Path: "log.txt", Content: "middle\n"}); err != nil {
		t.Fatal(err)
	}

	if _, err := h.Apply(Edit{Path: "log.txt", Content: "end\n", Mode: ModeAppend}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := h.Apply(Edit{Path: "log.txt", Content: "start\n", Mode: ModePrepend}); err != nil {
		t.Fatalf("prepend: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(h.Dir, "log.txt"))
	if string(data) != "start\nmiddle\nend\n" {
		t.Errorf("content = %q", data)
	}
}

func TestApply_RejectsEscapingPaths(t *testing.T) {
	h := newTestHandler(t)

	for _, path := range []string{"../outside.txt", "/etc/passwd", "a/../../up.txt"} {
		if _, err := h.Apply(Edit{Path: path, Content: "x"}); err == nil {
			t.Errorf("path %q should be rejected", path)
		}
	}
}

func TestApply_SectionUpdate(t *testing.T) {
	h := newTestHandler(t)
	doc := `# Plan

intro text

## Tasks

- old task

## Done

- something
`
	if err := os.WriteFile(filepath.Join(h.Dir, "plan.md"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := h.Apply(Edit{
		Path:        "plan.md",
		Mode:        ModeSection,
		SectionPath: "Plan > Tasks",
		Content:     "- new task\n- another task\n",
		Submode:     SubmodeUpdate,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(h.Dir, "plan.md"))
	text := string(data)
	if strings.Contains(text, "old task") {
		t.Error("old body should be gone")
	}
	if !strings.Contains(text, "- new task\n- another task") {
		t.Errorf("new body missing:\n%s", text)
	}
	if !strings.Contains(text, "## Done") || !strings.Contains(text, "- something") {
		t.Errorf("sibling section damaged:\n%s", text)
	}
}

func TestApply_SectionAppend(t *testing.T) {
	h := newTestHandler(t)
	doc := "# Log\n\n## Entries\n\n- first\n"
	if err := os.WriteFile(filepath.Join(h.Dir, "log.md"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := h.Apply(Edit{
		Path:        "log.md",
		Mode:        ModeSection,
		SectionPath: "Log > Entries",
		Content:     "- second\n",
		Submode:     SubmodeAppend,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(h.Dir, "log.md"))
	if !strings.Contains(string(data), "- first\n- second") {
		t.Errorf("content:\n%s", data)
	}
}

func TestApply_SectionPreface(t *testing.T) {
	h := newTestHandler(t)
	doc := "# Doc\n\nold intro\n\n## Body\n\ntext\n"
	if err := os.WriteFile(filepath.Join(h.Dir, "doc.md"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := h.Apply(Edit{
		Path:        "doc.md",
		Mode:        ModeSection,
		SectionPath: "Doc > __preface",
		Content:     "new intro\n",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(h.Dir, "doc.md"))
	text := string(data)
	if strings.Contains(text, "old intro") || !strings.Contains(text, "new intro") {
		t.Errorf("preface not replaced:\n%s", text)
	}
	if !strings.Contains(text, "## Body") || !strings.Contains(text, "text") {
		t.Errorf("body damaged:\n%s", text)
	}
}

func TestApply_SectionNotFound(t *testing.T) {
	h := newTestHandler(t)
	doc := "# Doc\n\ntext\n"
	if err := os.WriteFile(filepath.Join(h.Dir, "doc.md"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	var notified string
	h.Notify = func(text string) { notified = text }

	_, err := h.Apply(Edit{
		Path:        "doc.md",
		Mode:        ModeSection,
		SectionPath: "Doc > Missing",
		Content:     "x",
	})
	if err == nil {
		t.Fatal("missing section should error")
	}
	if notified == "" || !strings.Contains(notified, "Missing") {
		t.Errorf("notify = %q", notified)
	}

	data, _ := os.ReadFile(filepath.Join(h.Dir, "doc.md"))
	if string(data) != doc {
		t.Error("file must be unchanged when the section is missing")
	}
}
