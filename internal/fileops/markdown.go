package fileops

import (
	"strings"
)

// prefaceSection addresses the text between a heading and its first
// subheading.
const prefaceSection = "__preface"

type mdSection struct {
	level int // 0 for the document preamble
	title string
	start int // index of the heading line, -1 for preamble
	end   int // exclusive line index of the section body
}

// updateMarkdownSection rewrites one section of a markdown document. The
// section path is a " > "-separated chain of heading titles; the final
// element may be __preface to address the text before the first subheading.
func updateMarkdownSection(doc, sectionPath, content string, submode SectionSubmode) (string, error) {
	parts := splitSectionPath(sectionPath)
	if len(parts) == 0 {
		return "", ErrSectionNotFound
	}

	lines := strings.Split(doc, "\n")
	start, end, err := locateSection(lines, parts)
	if err != nil {
		return "", err
	}

	body := strings.Split(strings.TrimRight(content, "\n"), "\n")

	var out []string
	out = append(out, lines[:start]...)
	switch submode {
	case SubmodeAppend:
		existing := trimBlankTail(lines[start:end])
		out = append(out, existing...)
		out = append(out, body...)
	default: // SubmodeUpdate
		out = append(out, body...)
	}
	if end < len(lines) {
		out = append(out, "")
	}
	out = append(out, lines[end:]...)
	return strings.Join(out, "\n"), nil
}

// locateSection returns the [start, end) line range of the body addressed by
// parts. The heading line itself is excluded.
func locateSection(lines []string, parts []string) (int, int, error) {
	searchStart, searchEnd := 0, len(lines)
	level := 0

	for i, part := range parts {
		last := i == len(parts)-1

		if part == prefaceSection {
			if !last {
				return 0, 0, ErrSectionNotFound
			}
			// Body runs until the first subheading inside the range.
			end := searchEnd
			for j := searchStart; j < searchEnd; j++ {
				if l, _ := headingOf(lines[j]); l > 0 {
					end = j
					break
				}
			}
			return searchStart, end, nil
		}

		found := false
		for j := searchStart; j < searchEnd; j++ {
			l, title := headingOf(lines[j])
			if l == 0 || l <= level {
				if l != 0 && l <= level {
					break // left the parent section
				}
				continue
			}
			if title == part {
				bodyStart := j + 1
				bodyEnd := searchEnd
				for k := bodyStart; k < searchEnd; k++ {
					if lk, _ := headingOf(lines[k]); lk > 0 && lk <= l {
						bodyEnd = k
						break
					}
				}
				searchStart, searchEnd, level = bodyStart, bodyEnd, l
				found = true
				break
			}
		}
		if !found {
			return 0, 0, ErrSectionNotFound
		}

		if last {
			return searchStart, searchEnd, nil
		}
	}
	return 0, 0, ErrSectionNotFound
}

// headingOf parses an ATX heading line, returning its level and title, or
// level 0 for non-heading lines.
func headingOf(line string) (int, string) {
	trimmed := strings.TrimLeft(line, " ")
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, ""
	}
	rest := trimmed[level:]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return 0, ""
	}
	return level, strings.TrimSpace(rest)
}

func splitSectionPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, ">") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func trimBlankTail(lines []string) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[:end]
}
