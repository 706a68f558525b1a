package source

import "strings"

// quoteReplacer maps the common unicode quote variants onto their ASCII
// equivalents before the non-ASCII strip, so quoted text survives cleaning.
var quoteReplacer = strings.NewReplacer(
	"‘", "'", // left single quotation mark
	"’", "'", // right single quotation mark
	"‚", "'", // single low-9 quotation mark
	"‛", "'", // single high-reversed-9 quotation mark
	"′", "'", // prime
	"“", `"`, // left double quotation mark
	"”", `"`, // right double quotation mark
	"„", `"`, // double low-9 quotation mark
	"‟", `"`, // double high-reversed-9 quotation mark
	"″", `"`, // double prime
)

// Clean strips non-semantic noise from file content: unicode quotes become
// ASCII quotes, remaining non-ASCII and control characters are dropped, and
// runs of spaces collapse to one. Newlines and tabs are preserved because
// the chunker's boundary separators depend on them.
func Clean(s string) string {
	s = quoteReplacer.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
			prevSpace = false
		case r == ' ':
			if !prevSpace {
				b.WriteByte(' ')
			}
			prevSpace = true
		case r < 0x20 || r > 0x7e:
			// control characters (including \r) and non-ASCII dropped
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	return b.String()
}
