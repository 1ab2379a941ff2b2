// Package markup renders the BBCode used in question text to sanitized HTML.
package markup

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/frustra/bbcode"
	"github.com/microcosm-cc/bluemonday"
)

// Formatter turns stored field text into display markup.
type Formatter interface {
	Format(text string) string
}

// BBCode compiles [b], [i], [u], [s], [color], [url] and friends plus a
// [size=N] tag, then sanitizes the result.
type BBCode struct {
	compiler bbcode.Compiler
	policy   *bluemonday.Policy
}

var sizeValue = regexp.MustCompile(`^\d{1,2}(px|pt|em)?$`)

// NewBBCode builds the formatter.
func NewBBCode() *BBCode {
	compiler := bbcode.NewCompiler(true, true)
	compiler.SetTag("size", func(node *bbcode.BBCodeNode) (*bbcode.HTMLTag, bool) {
		out := bbcode.NewHTMLTag("")
		out.Name = "span"
		if size := fontSize(node.GetOpeningTag().Value); size != "" {
			out.Attrs["style"] = "font-size: " + size + ";"
		}
		return out, true
	})

	policy := bluemonday.UGCPolicy()
	policy.AllowStyles("font-size", "color", "text-align").OnElements("span", "div")
	policy.AllowAttrs("class").OnElements("span", "div")

	return &BBCode{compiler: compiler, policy: policy}
}

// Format renders text. Blank input renders as "".
func (b *BBCode) Format(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return b.policy.Sanitize(b.compiler.Compile(text))
}

// fontSize accepts "14", "14px", "1em"; bare numbers are pixels.
func fontSize(raw string) string {
	raw = strings.TrimSpace(raw)
	if !sizeValue.MatchString(raw) {
		return ""
	}
	if _, err := strconv.Atoi(raw); err == nil {
		return raw + "px"
	}
	return raw
}
