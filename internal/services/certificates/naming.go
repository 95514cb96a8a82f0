package certsvc

import (
	"fmt"
	"regexp"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9\-_]`)

const fallbackFileName = "certificate"

// fileNamer hands out unique PDF names in call order. The first "Jane Doe" is
// Jane_Doe.pdf, the next Jane_Doe-1.pdf.
type fileNamer struct {
	used map[string]bool
}

func newFileNamer() *fileNamer { return &fileNamer{used: map[string]bool{}} }

// sanitizeFileName maps every character outside [A-Za-z0-9-_] to '_'. Only an
// empty value falls back to "certificate".
func sanitizeFileName(v string) string {
	if v == "" {
		return fallbackFileName
	}
	return unsafeFileChars.ReplaceAllString(v, "_")
}

func (n *fileNamer) next(value string) string {
	base := sanitizeFileName(value)
	name := base
	for i := 1; n.used[name]; i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	n.used[name] = true
	return name + ".pdf"
}
