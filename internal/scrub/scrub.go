// Package scrub normalizes raw device configurations so two runs against an
// unchanged device produce byte-identical output, and computes a stable
// content hash over the normalized text.
package scrub

import (
	"encoding/hex"
	"strings"

	"github.com/steg2011/netvault/internal/models"
	"github.com/steg2011/netvault/pkg/utils"
)

const certBlockOpener = "crypto pki certificate"

// Scrub strips volatile fields from raw for the given platform and returns
// the normalized text together with the lowercase hex SHA-256 of its UTF-8
// bytes. Pure and deterministic: no I/O, no clock, no randomness.
func Scrub(raw string, platform models.Platform) (string, string) {
	text := raw
	if text != "" {
		if hasCertBlocks(platform) {
			text = stripCertBlocks(text)
		}
		for _, r := range rulesFor(platform) {
			text = r.re.ReplaceAllString(text, r.repl)
		}
		for _, r := range commonRules {
			text = r.re.ReplaceAllString(text, r.repl)
		}
	}
	sum := utils.SumSHA256([]byte(text))
	return text, hex.EncodeToString(sum[:])
}

// stripCertBlocks collapses each embedded certificate block to a single
// sentinel line. A block runs from its "crypto pki certificate" opener
// through the indented lines that follow; the first column-zero line
// terminates it and is never consumed.
func stripCertBlocks(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	i := 0
	for i < len(lines) {
		if !strings.HasPrefix(lines[i], certBlockOpener) {
			out = append(out, lines[i])
			i++
			continue
		}
		out = append(out, certBlockOpener+" <serial>")
		i++
		for i < len(lines) && indented(lines[i]) {
			i++
		}
	}
	return strings.Join(out, "\n")
}

func indented(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}
