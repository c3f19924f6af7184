// Package fileops applies assistant-driven file edits inside a sandbox
// directory: whole-file writes, append/prepend, and markdown section updates.
package fileops

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Mode selects how content is applied to the target file.
type Mode string

const (
	ModeCreate  Mode = "create"
	ModeAppend  Mode = "append"
	ModePrepend Mode = "prepend"
	ModeSection Mode = "section"
)

// SectionSubmode controls what a section edit does with existing content.
type SectionSubmode string

const (
	// SubmodeUpdate replaces the section body, keeping the heading.
	SubmodeUpdate SectionSubmode = "update"
	// SubmodeAppend adds to the end of the section body.
	SubmodeAppend SectionSubmode = "append"
)

// ErrSectionNotFound is returned when a markdown section path does not match.
var ErrSectionNotFound = errors.New("section not found")

// Handler performs file edits under Dir. Existing files are backed up before
// being overwritten, and whole-file overwrites require user confirmation.
type Handler struct {
	Dir       string
	BackupDir string

	// Confirm asks the user before an existing file is replaced. Nil
	// means never overwrite.
	Confirm func(prompt string) bool

	// Notify reports outcomes to the user. Optional.
	Notify func(text string)

	logger *slog.Logger
}

// NewHandler creates a handler rooted at dir.
func NewHandler(dir string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Dir:       dir,
		BackupDir: filepath.Join(dir, ".parley-backups"),
		logger:    logger.With("component", "fileops"),
	}
}

// Edit is one requested file change.
type Edit struct {
	Path    string
	Content string
	Mode    Mode

	// SectionPath addresses a markdown section as "H1 > H2 > H3" when
	// Mode is ModeSection.
	SectionPath string
	Submode     SectionSubmode
}

// Apply performs the edit and returns a short outcome description.
func (h *Handler) Apply(edit Edit) (string, error) {
	path, err := h.resolve(edit.Path)
	if err != nil {
		return "", err
	}

	switch edit.Mode {
	case ModeCreate, "":
		return h.create(path, edit.Path, edit.Content)
	case ModeAppend:
		return h.concat(path, edit.Path, edit.Content, false)
	case ModePrepend:
		return h.concat(path, edit.Path, edit.Content, true)
	case ModeSection:
		return h.section(path, edit)
	default:
		return "", fmt.Errorf("unknown file mode %q", edit.Mode)
	}
}

// resolve joins the relative path under Dir and rejects escapes.
func (h *Handler) resolve(rel string) (string, error) {
	if rel == "" {
		return "", errors.New("empty file path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", rel)
	}
	joined := filepath.Join(h.Dir, rel)
	base, err := filepath.Abs(h.Dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", err
	}
	if abs != base && !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes working directory: %s", rel)
	}
	return joined, nil
}

func (h *Handler) create(path, rel, content string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		prompt := fmt.Sprintf("File %s already exists. Overwrite? [y/N] ", rel)
		if h.Confirm == nil || !h.Confirm(prompt) {
			return "", fmt.Errorf("not overwriting %s", rel)
		}
		if err := h.backup(path, rel); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create parent dirs: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	h.logger.Info("wrote file", "path", rel, "bytes", len(content))
	return "Wrote " + rel, nil
}

func (h *Handler) concat(path, rel, content string, prepend bool) (string, error) {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	if len(existing) > 0 {
		if err := h.backup(path, rel); err != nil {
			return "", err
		}
	}

	var merged string
	if prepend {
		merged = content + string(existing)
	} else {
		merged = string(existing) + content
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create parent dirs: %w", err)
	}
	if err := os.WriteFile(path, []byte(merged), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}

	verb := "Appended to "
	if prepend {
		verb = "Prepended to "
	}
	h.logger.Info("extended file", "path", rel, "prepend", prepend)
	return verb + rel, nil
}

func (h *Handler) section(path string, edit Edit) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", edit.Path, err)
	}
	if err := h.backup(path, edit.Path); err != nil {
		return "", err
	}

	submode := edit.Submode
	if submode == "" {
		submode = SubmodeUpdate
	}
	updated, err := updateMarkdownSection(string(data), edit.SectionPath, edit.Content, submode)
	if err != nil {
		if errors.Is(err, ErrSectionNotFound) && h.Notify != nil {
			h.Notify(fmt.Sprintf("Section %q not found in %s; file unchanged.",
				edit.SectionPath, edit.Path))
		}
		return "", err
	}
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", edit.Path, err)
	}
	h.logger.Info("updated section", "path", edit.Path, "section", edit.SectionPath)
	return fmt.Sprintf("Updated section %q in %s", edit.SectionPath, edit.Path), nil
}

// backup copies the file into BackupDir with a timestamp suffix.
func (h *Handler) backup(path, rel string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("backup read: %w", err)
	}
	if err := os.MkdirAll(h.BackupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	name := strings.ReplaceAll(rel, string(filepath.Separator), "_") +
		"." + time.Now().Format("20060102-150405") + ".bak"
	target := filepath.Join(h.BackupDir, name)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	h.logger.Debug("backed up file", "path", rel, "backup", target)
	return nil
}
