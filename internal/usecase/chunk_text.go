package usecase

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	tagRe        = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRe      = regexp.MustCompile(`\s+`)
	fenceOpenRe  = regexp.MustCompile("^```[a-zA-Z0-9_-]*[ \t]*\r?\n?")
	fenceCloseRe = regexp.MustCompile("\r?\n?```[ \t]*$")
	// leading artifacts models add when asked to continue
	leadArtifactRe = regexp.MustCompile(`(?i)^\s*(\[(continued|continuing|cont\.?)\]|\((continued|continuing|cont\.?)\)|continu(ed|ing)( from where (i|we) left off)?\s*[:.\-]+)\s*`)
	artifactRe     = regexp.MustCompile(`(?i)\[(continued|continuing|cont\.?)\]|\((continued|continuing)\)`)
	naturalEndRe   = regexp.MustCompile(`(?i)([.!?…]["')\]]?|</(p|div|section|article|ul|ol|li|table|body|html|h[1-6])>)\s*$`)
)

// cleanChunk strips code fences and leading continuation artifacts from one chunk.
func cleanChunk(raw string) string {
	s := strings.TrimSpace(raw)
	s = fenceOpenRe.ReplaceAllString(s, "")
	s = fenceCloseRe.ReplaceAllString(s, "")
	for {
		next := leadArtifactRe.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

// joinChunks appends next to acc without gluing words or tags together.
func joinChunks(acc, next string) string {
	switch {
	case acc == "":
		return next
	case next == "":
		return acc
	}
	last := rune(acc[len(acc)-1])
	first := rune(next[0])
	switch {
	case unicode.IsSpace(last) || unicode.IsSpace(first):
		return acc + next
	case last == '>' || first == '<':
		return acc + "\n" + next
	default:
		return acc + "\n\n" + next
	}
}

// visibleText drops markup and collapses whitespace.
func visibleText(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func wordCount(s string) int {
	return len(strings.Fields(visibleText(s)))
}

// hasNaturalEnding reports whether the chunk ends on a sentence or closing block tag.
func hasNaturalEnding(chunk string) bool {
	return naturalEndRe.MatchString(strings.TrimSpace(stripComments(chunk)))
}

// keywordNearEnd reports whether any keyword appears in the tail of chunk.
// The tail is the last quarter of the visible text, at least 400 characters.
func keywordNearEnd(chunk string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	v := strings.ToLower(visibleText(chunk))
	tail := len(v) / 4
	if tail < 400 {
		tail = 400
	}
	if len(v) > tail {
		v = v[len(v)-tail:]
	}
	for _, k := range keywords {
		if strings.Contains(v, k) {
			return true
		}
	}
	return false
}

var commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)

func stripComments(s string) string { return commentRe.ReplaceAllString(s, "") }

// finalizeText removes the marker and its residue, drops continuation
// artifacts and closes an unterminated HTML document.
func finalizeText(s, marker string) string {
	if re := markerPattern(marker); re != nil {
		s = re.ReplaceAllString(s, "")
	}
	s = artifactRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	lower := strings.ToLower(s)
	if strings.Contains(lower, "<body") && !strings.Contains(lower, "</body>") {
		s += "\n</body>"
	}
	if strings.Contains(lower, "<html") && !strings.Contains(lower, "</html>") {
		s += "\n</html>"
	}
	return s
}

// markerCore is the marker without HTML comment delimiters, e.g. GENERATION_COMPLETE.
func markerCore(marker string) string {
	m := strings.TrimSpace(marker)
	m = strings.TrimPrefix(m, "<!--")
	m = strings.TrimSuffix(m, "-->")
	m = strings.TrimSpace(m)
	if m == strings.TrimSpace(marker) {
		return ""
	}
	return m
}

// markerPattern matches the marker with any spacing inside its comment
// delimiters, plus a bare core left trailing the text.
func markerPattern(marker string) *regexp.Regexp {
	m := strings.TrimSpace(marker)
	if m == "" {
		return nil
	}
	core := markerCore(m)
	if core == "" {
		return regexp.MustCompile(spaced(m))
	}
	c := spaced(core)
	expr := `<!--\s*` + c + `\s*-->`
	if len(core) >= 6 {
		expr += `|` + c + `\s*$`
	}
	return regexp.MustCompile(expr)
}

// spaced quotes s and lets any whitespace run match any other.
func spaced(s string) string {
	parts := strings.Fields(s)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, `\s+`)
}
