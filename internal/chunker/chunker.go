// Package chunker splits markdown documents into sections small enough to be
// stored as individual memory entries.
package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultTargetSize = 400
	DefaultMaxSize    = 600
)

// Options configures splitting. Sizes are in bytes.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Section is one piece of a document together with the heading it sits
// under and its line span in the original text.
type Section struct {
	Text      string
	Heading   string
	StartLine int
	EndLine   int
}

// Split breaks text into sections. Text no longer than MaxSize comes back as
// a single section.
func Split(text string, opts Options) []Section {
	if opts.TargetSize <= 0 || opts.MaxSize <= 0 {
		opts = DefaultOptions()
	}

	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	if len(text) <= opts.MaxSize {
		lines := strings.Split(text, "\n")
		return []Section{{Text: text, Heading: firstHeading(lines), StartLine: 1, EndLine: len(lines)}}
	}

	return merge(splitBlocks(text), opts)
}

// headingText returns the title of a markdown ATX heading line, or "" if the
// line is not a heading.
func headingText(line string) string {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "#") {
		return ""
	}
	return strings.TrimSpace(strings.TrimLeft(t, "#"))
}

func firstHeading(lines []string) string {
	for _, l := range lines {
		if h := headingText(l); h != "" {
			return h
		}
	}
	return ""
}

// splitBlocks cuts on heading lines and on runs of blank lines. Each block
// inherits the most recent heading.
func splitBlocks(text string) []Section {
	lines := strings.Split(text, "\n")
	var blocks []Section
	var current []string
	start := 1
	heading := ""

	flush := func(end int) {
		if len(current) == 0 {
			return
		}
		if t := strings.TrimSpace(strings.Join(current, "\n")); t != "" {
			blocks = append(blocks, Section{Text: t, Heading: heading, StartLine: start, EndLine: end})
		}
		current = nil
		start = end + 1
	}

	prevBlank := false
	for i, line := range lines {
		n := i + 1
		if h := headingText(line); h != "" {
			flush(n - 1)
			start = n
			heading = h
		}
		if strings.TrimSpace(line) == "" {
			if prevBlank {
				flush(n - 1)
			}
			prevBlank = true
			current = append(current, line)
			continue
		}
		prevBlank = false
		current = append(current, line)
	}
	flush(len(lines))
	return blocks
}

// merge packs consecutive blocks under the same heading up to TargetSize
// and hard-splits any block larger than MaxSize. A heading change always
// starts a new section.
func merge(blocks []Section, opts Options) []Section {
	var out []Section
	var acc Section

	emit := func() {
		if acc.Text == "" {
			return
		}
		if len(acc.Text) > opts.MaxSize {
			out = append(out, hardSplit(acc, opts)...)
		} else {
			out = append(out, acc)
		}
		acc = Section{}
	}

	for _, b := range blocks {
		if acc.Text == "" {
			acc = b
			continue
		}
		combined := acc.Text + "\n\n" + b.Text
		if b.Heading == acc.Heading && len(combined) <= opts.TargetSize {
			acc.Text = combined
			acc.EndLine = b.EndLine
			continue
		}
		emit()
		acc = b
	}
	emit()
	return out
}

// hardSplit breaks an oversized section on line boundaries, packing lines up
// to MaxSize. A single line longer than MaxSize is cut into pieces.
func hardSplit(s Section, opts Options) []Section {
	lines := strings.Split(s.Text, "\n")
	var out []Section
	var current []string
	curStart := s.StartLine
	size := 0

	add := func(text string, start, end int) {
		if t := strings.TrimSpace(text); t != "" {
			out = append(out, Section{Text: t, Heading: s.Heading, StartLine: start, EndLine: end})
		}
	}
	flush := func(end int) {
		if len(current) > 0 {
			add(strings.Join(current, "\n"), curStart, end)
		}
		current = nil
		size = 0
	}

	for i, line := range lines {
		n := s.StartLine + i
		if len(line) > opts.MaxSize {
			flush(n - 1)
			for _, piece := range cutLine(line, opts.MaxSize) {
				add(piece, n, n)
			}
			curStart = n + 1
			continue
		}
		if len(current) > 0 && size+len(line) > opts.MaxSize {
			flush(n - 1)
			curStart = n
		}
		current = append(current, line)
		size += len(line) + 1
	}
	flush(s.StartLine + len(lines) - 1)
	return out
}

// cutLine splits line into pieces of at most limit bytes, preferring the last
// space before the limit and never cutting inside a UTF-8 sequence.
func cutLine(line string, limit int) []string {
	var out []string
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if sp := strings.LastIndexByte(line[:cut], ' '); sp > 0 {
			cut = sp
		}
		if cut == 0 {
			// a single rune wider than limit; keep it whole
			_, cut = utf8.DecodeRuneInString(line)
		}
		out = append(out, line[:cut])
		line = strings.TrimLeft(line[cut:], " ")
	}
	if line != "" {
		out = append(out, line)
	}
	return out
}
