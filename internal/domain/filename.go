package domain

import (
	"regexp"
	"strings"
)

// Output extensions per artifact kind.
const (
	ExtPDF  = ".pdf"
	ExtDOCX = ".docx"
)

const maxFilenameBase = 200

var disallowedFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// CanonicalFilename strips every character outside [a-zA-Z0-9_.-], drops leading
// dots and makes sure the result ends in ext. A trailing extension listed in
// replace is swapped for ext ("cv.pdf" -> "cv.docx"). The function is idempotent.
func CanonicalFilename(name, ext string, replace ...string) (string, error) {
	cleaned := disallowedFilenameChars.ReplaceAllString(name, "")
	cleaned = strings.TrimLeft(cleaned, ".")

	base, suffix := cleaned, ext
	lower := strings.ToLower(cleaned)
	if strings.HasSuffix(lower, ext) {
		base, suffix = cleaned[:len(cleaned)-len(ext)], cleaned[len(cleaned)-len(ext):]
	} else {
		for _, r := range replace {
			if strings.HasSuffix(lower, r) {
				base = cleaned[:len(cleaned)-len(r)]
				break
			}
		}
	}

	base = strings.TrimRight(base, ".")
	if base == "" {
		return "", Invalid("filename %q is empty after sanitization", name)
	}
	if len(base) > maxFilenameBase {
		base = strings.TrimRight(base[:maxFilenameBase], ".")
	}
	return base + suffix, nil
}

// IsCanonicalKey reports whether key is a valid storage key for ext.
func IsCanonicalKey(key, ext string) bool {
	got, err := CanonicalFilename(key, ext)
	return err == nil && got == key
}
