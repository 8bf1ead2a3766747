package shopee

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"
)

// NameExtractor pulls a display name out of a fetched page. Page layouts
// change without notice; each layout generation gets its own extractor.
type NameExtractor interface {
	Name() string
	Extract(body []byte) (string, bool)
}

// NicknameClassFragment is the stable part of the nickname element class.
// The build appends a hash, e.g. "_nickName_3tava_32".
const NicknameClassFragment = "_nickName_"

// ClassNameExtractor captures the text of the first element whose class
// attribute contains a fragment.
type ClassNameExtractor struct {
	fragment string
	pattern  *regexp.Regexp
}

// NewClassNameExtractor matches elements whose class contains fragment.
func NewClassNameExtractor(fragment string) *ClassNameExtractor {
	return &ClassNameExtractor{
		fragment: fragment,
		pattern:  regexp.MustCompile(`class="[^"]*` + regexp.QuoteMeta(fragment) + `[^"]*"[^>]*>([^<]*)<`),
	}
}

// Name identifies the extractor in logs.
func (e *ClassNameExtractor) Name() string {
	return "class:" + e.fragment
}

// Extract returns the trimmed, unescaped inner text of the first match.
func (e *ClassNameExtractor) Extract(body []byte) (string, bool) {
	m := e.pattern.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(html.UnescapeString(string(m[1])))
	return name, name != ""
}

// JSONFieldExtractor finds a "field":"value" pair embedded in page state.
type JSONFieldExtractor struct {
	field   string
	pattern *regexp.Regexp
}

// NewJSONFieldExtractor matches the first string value of field.
func NewJSONFieldExtractor(field string) *JSONFieldExtractor {
	return &JSONFieldExtractor{
		field:   field,
		pattern: regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`),
	}
}

// Name identifies the extractor in logs.
func (e *JSONFieldExtractor) Name() string {
	return "json:" + e.field
}

// Extract returns the JSON-decoded, trimmed value of the first match.
func (e *JSONFieldExtractor) Extract(body []byte) (string, bool) {
	m := e.pattern.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	raw := string(m[1])
	var decoded string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &decoded); err != nil {
		decoded = raw
	}
	name := strings.TrimSpace(decoded)
	return name, name != ""
}

// PrimaryExtractors are applied first to the creator page.
func PrimaryExtractors() []NameExtractor {
	return []NameExtractor{NewClassNameExtractor(NicknameClassFragment)}
}

// SecondaryExtractors search embedded page state once the element scrape misses.
func SecondaryExtractors() []NameExtractor {
	return []NameExtractor{
		NewJSONFieldExtractor("nick_name"),
		NewJSONFieldExtractor("username"),
	}
}
