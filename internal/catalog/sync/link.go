package sync

import (
	"bufio"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// maxLinkSize bounds how much of a shortcut file is read.
const maxLinkSize = 64 << 10

// ParseLink extracts the target of an internet shortcut file.
//
// The first line starting with "URL=" (any case) wins; the text after its
// first '=' is returned trimmed. A missing or unreadable file, undecodable
// text, no matching line, or an empty value all yield ("", false).
// A byte-order mark is honored, including UTF-16 ones written by Windows.
func ParseLink(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r := transform.NewReader(io.LimitReader(f, maxLinkSize), dec)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 || !strings.EqualFold(line[:4], "URL=") {
			continue
		}
		value := strings.TrimSpace(line[4:])
		// The decoder substitutes U+FFFD for invalid bytes.
		if value == "" || strings.ContainsRune(value, utf8.RuneError) {
			return "", false
		}
		return value, true
	}
	return "", false
}
