//go:build !integration

package usecase

import (
	"strings"
	"testing"

	"form-ai-queue/internal/domain/model"
)

func TestCleanChunk(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"fenced html", "```html\n<p>Hi</p>\n```", "<p>Hi</p>"},
		{"bare fence", "```\nplain\n```", "plain"},
		{"bracket artifact", "[continued] Next part", "Next part"},
		{"sentence artifact", "Continuing from where I left off: the rest", "the rest"},
		{"untouched", "  Just text.  ", "Just text."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cleanChunk(tc.in); got != tc.want {
				t.Errorf("cleanChunk(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestJoinChunks(t *testing.T) {
	t.Run("should keep tags on separate lines", func(t *testing.T) {
		if got := joinChunks("<p>a</p>", "<p>b</p>"); got != "<p>a</p>\n<p>b</p>" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("should separate prose with a blank line", func(t *testing.T) {
		if got := joinChunks("One.", "Two."); got != "One.\n\nTwo." {
			t.Errorf("got %q", got)
		}
	})
	t.Run("should not add whitespace twice", func(t *testing.T) {
		if got := joinChunks("One. ", "Two."); got != "One. Two." {
			t.Errorf("got %q", got)
		}
	})
	t.Run("should handle empty sides", func(t *testing.T) {
		if joinChunks("", "x") != "x" || joinChunks("x", "") != "x" {
			t.Error("empty side must return the other")
		}
	})
}

func TestHasNaturalEnding(t *testing.T) {
	for in, want := range map[string]bool{
		"It ends here.":           true,
		"<p>done</p>":             true,
		"Really?":                 true,
		"mid sentence":            false,
		"done.<!-- MARK -->":      true,
		"<p>open paragraph":       false,
		`He said "stop."`:         true,
		"list item</li>\n  ":      true,
		"trailing comma,":         false,
		"</section>":              true,
		"<span>inline</span>":     false,
		"Finished!<!-- END -->\n": true,
	} {
		if got := hasNaturalEnding(in); got != want {
			t.Errorf("hasNaturalEnding(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestKeywordNearEnd(t *testing.T) {
	keywords := []string{"in conclusion", "summary"}

	t.Run("should find a keyword in a short chunk", func(t *testing.T) {
		if !keywordNearEnd("<p>In conclusion, it works.</p>", keywords) {
			t.Error("expected keyword match")
		}
	})
	t.Run("should ignore a keyword far from the end", func(t *testing.T) {
		chunk := "Summary first. " + strings.Repeat("filler words here ", 200)
		if keywordNearEnd(chunk, keywords) {
			t.Error("keyword at the start of a long chunk must not count")
		}
	})
	t.Run("should report false without keywords", func(t *testing.T) {
		if keywordNearEnd("in conclusion", nil) {
			t.Error("no keywords means no match")
		}
	})
}

func TestFinalizeText(t *testing.T) {
	t.Run("should strip the marker and close the document", func(t *testing.T) {
		got := finalizeText("<html><body><p>x</p><!-- END -->", "<!-- END -->")
		if strings.Contains(got, "END") {
			t.Errorf("marker left in %q", got)
		}
		if !strings.HasSuffix(got, "</body>\n</html>") {
			t.Errorf("expected closing tags, got %q", got)
		}
	})
	t.Run("should strip marker residue", func(t *testing.T) {
		got := finalizeText("Body text. GENERATION_COMPLETE", "<!-- GENERATION_COMPLETE -->")
		if got != "Body text." {
			t.Errorf("got %q", got)
		}
	})
	t.Run("should strip the marker written without spaces", func(t *testing.T) {
		got := finalizeText("Body text.\n<!--GENERATION_COMPLETE-->", model.DefaultCompletionMarker)
		if got != "Body text." {
			t.Errorf("got %q", got)
		}
	})
	t.Run("should keep the marker core when it is part of the prose", func(t *testing.T) {
		in := "Set GENERATION_COMPLETE in the config, then restart."
		if got := finalizeText(in, model.DefaultCompletionMarker); got != in {
			t.Errorf("got %q", got)
		}
	})
	t.Run("should drop inline continuation artifacts", func(t *testing.T) {
		got := finalizeText("Part one. [continued] Part two.", "")
		if strings.Contains(got, "continued") {
			t.Errorf("artifact left in %q", got)
		}
	})
	t.Run("should leave complete documents alone", func(t *testing.T) {
		doc := "<html><body>ok</body></html>"
		if got := finalizeText(doc, ""); got != doc {
			t.Errorf("got %q", got)
		}
	})
}

func TestWordCountIgnoresMarkup(t *testing.T) {
	if n := wordCount("<p>one <b>two</b></p>\n<p>three</p>"); n != 3 {
		t.Errorf("expected 3 words, got %d", n)
	}
}
