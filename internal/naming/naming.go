// Package naming derives artifact filenames from capture URLs.
package naming

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

const timestampLayout = "20060102_150405"

var (
	camelBoundary  = regexp.MustCompile(`([a-z])([A-Z])`)
	wordSeparators = regexp.MustCompile(`[-_\s]+`)
	leadingSymbols = regexp.MustCompile(`^[^a-zA-Z0-9]+`)
	repeatedSlash  = regexp.MustCompile(`/+`)
	repeatedSpace  = regexp.MustCompile(`\s+`)
	unsafeChars    = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)
)

// Namer builds filenames. The clock stamps names for URLs outside the base.
type Namer struct {
	clock capture.Clock
}

// New returns a Namer using clock.
func New(clock capture.Clock) *Namer {
	return &Namer{clock: clock}
}

// Replacement rewrites one word (case-insensitively) in the URL path.
type Replacement struct {
	Word        string  `json:"word"`
	Replacement *string `json:"replacement"`
}

// Name returns the artifact filename for rawURL. ordinal 0 names a single
// capture; ordinals from 1 name segments and add a 3-digit suffix.
func (n *Namer) Name(rawURL, baseURL, wordsToRemove string, ordinal int) string {
	if baseURL != "" && strings.HasPrefix(rawURL, baseURL) {
		name := baseName(strings.TrimPrefix(rawURL, baseURL), wordsToRemove)
		if ordinal > 0 {
			return name + "_" + pad3(ordinal) + ".png"
		}
		return name + ".png"
	}

	host := hostOf(rawURL)
	stamp := n.clock.Now().Format(timestampLayout)
	if ordinal > 0 {
		return host + "_" + pad3(ordinal) + "_" + stamp + ".png"
	}
	return host + "_" + stamp + ".png"
}

func baseName(path, wordsToRemove string) string {
	path = strings.Trim(path, "/")
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, r := range ParseReplacements(wordsToRemove) {
		path = replaceFold(path, r.Word, r.with())
	}
	path = repeatedSlash.ReplaceAllString(path, "/")
	path = repeatedSpace.ReplaceAllString(path, " ")
	path = strings.Trim(path, "/ ")

	name := "Index"
	if path != "" {
		var parts []string
		for _, seg := range strings.Split(path, "/") {
			if seg == "" {
				continue
			}
			parts = append(parts, PascalCase(seg))
		}
		name = strings.Join(parts, "_")
	}
	name = unsafeChars.ReplaceAllString(name, "")
	name = leadingSymbols.ReplaceAllString(name, "")
	if name == "" {
		return "Unnamed"
	}
	return name
}

func (r Replacement) with() string {
	if r.Replacement == nil {
		return " "
	}
	return *r.Replacement
}

// ParseReplacements accepts either a JSON array of {word, replacement} or a
// comma-separated word list. Words in a plain list are replaced by a space.
func ParseReplacements(raw string) []Replacement {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var parsed []Replacement
	if strings.HasPrefix(raw, "[") && json.Unmarshal([]byte(raw), &parsed) == nil {
		out := parsed[:0]
		for _, r := range parsed {
			if r.Word != "" {
				out = append(out, r)
			}
		}
		return out
	}
	var out []Replacement
	for _, w := range strings.Split(raw, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, Replacement{Word: w})
		}
	}
	return out
}

// PascalCase splits text on separators and lower-to-upper boundaries and
// capitalizes each word.
func PascalCase(text string) string {
	text = camelBoundary.ReplaceAllString(text, "$1 $2")
	var b strings.Builder
	for _, word := range wordSeparators.Split(text, -1) {
		if word == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(strings.ToLower(word[size:]))
	}
	out := leadingSymbols.ReplaceAllString(b.String(), "")
	if out == "" {
		return "Unnamed"
	}
	return out
}

func replaceFold(s, word, with string) string {
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(word))
	if err != nil {
		return s
	}
	return re.ReplaceAllLiteralString(s, with)
}

func hostOf(raw string) string {
	host := ""
	if u, err := url.Parse(raw); err == nil {
		host = u.Host
	}
	if host == "" {
		host = "unknown"
	}
	host = strings.ReplaceAll(host, ":", "_")
	return unsafeChars.ReplaceAllString(host, "")
}

func pad3(n int) string {
	return fmt.Sprintf("%03d", n)
}
