// Package cota derives canonical consortium account identities from free text.
// An identity is the (group, account, digit) triple that keys every record on
// the portal; this package turns user input lines, PDF text, and previously
// generated filenames back into that triple.
package cota

import (
	"fmt"
	"regexp"
	"strings"
)

// Identity is the canonical (group, account, digit) triple for one cota.
// Group is exactly 4 digits, Account is a non-empty digit string and Digit is
// a single digit. Equality is plain struct equality on the three fields.
type Identity struct {
	Group   string
	Account string
	Digit   string
}

// String renders the identity in the filename convention: group.account-digit.
func (id Identity) String() string {
	return fmt.Sprintf("%s.%s-%s", id.Group, id.Account, id.Digit)
}

// Valid reports whether the triple satisfies the identity invariant.
func (id Identity) Valid() bool {
	return len(id.Group) == 4 && isDigits(id.Group) &&
		id.Account != "" && isDigits(id.Account) &&
		len(id.Digit) == 1 && isDigits(id.Digit)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

var digitRuns = regexp.MustCompile(`\d+`)

// Extract derives an identity from arbitrary text using the digit-run
// heuristic. All maximal digit runs are collected in order of appearance:
// a single run longer than 5 characters splits as group(4)/account/digit(1);
// with multiple runs the last run is the digit and the concatenation of the
// rest splits as group(4)/account. Anything shorter is ambiguous and fails.
// Punctuation between runs is irrelevant, so "1564.221-1", "1564,221,1" and
// "1564 221 1" all parse identically.
func Extract(text string) (Identity, bool) {
	runs := digitRuns.FindAllString(text, -1)
	if len(runs) == 0 {
		return Identity{}, false
	}

	if len(runs) == 1 {
		full := runs[0]
		if len(full) <= 5 {
			return Identity{}, false
		}
		return Identity{
			Group:   full[:4],
			Account: full[4 : len(full)-1],
			Digit:   full[len(full)-1:],
		}, true
	}

	digit := runs[len(runs)-1]
	merged := strings.Join(runs[:len(runs)-1], "")
	if len(merged) < 4 {
		return Identity{}, false
	}
	return Identity{
		Group:   merged[:4],
		Account: merged[4:],
		Digit:   digit[len(digit)-1:],
	}, true
}

var filenamePattern = regexp.MustCompile(`(?i)LANCE[- ]?(\d{4})[.,\s]?([\d,]+)[-\s]?(\d)\.pdf`)

// ExtractFromFilename parses the stricter filed-document naming convention:
// a LANCE prefix, 4-digit group, account digits (commas tolerated) and a
// single check digit immediately before the .pdf suffix, case-insensitive.
func ExtractFromFilename(name string) (Identity, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return Identity{}, false
	}
	id := Identity{
		Group:   m[1],
		Account: strings.ReplaceAll(m[2], ",", ""),
		Digit:   m[3],
	}
	return id, true
}

var (
	whitespace      = regexp.MustCompile(`\s+`)
	consorciadoName = regexp.MustCompile(`(?i)Consorciado\s*[:\-]?\s*([A-ZÀ-Ú\s]{5,})`)
	identityInText  = regexp.MustCompile(`(\d{4})[.,\s]?([\d,]+)[-\s]?(\d)`)
	cotaLabel       = regexp.MustCompile(`(?i)Cota\s*`)
)

// ExtractWithName scans confirmation-document text for the labeled person
// name and the identity pattern. The identity is searched in priority order:
// immediately after the found name, immediately after a "Cota" label, then
// anywhere in the text. When either half is missing the returned diagnostic
// names what failed; partial results are never guessed.
func ExtractWithName(docText string) (name string, id Identity, diag string) {
	text := strings.TrimSpace(whitespace.ReplaceAllString(docText, " "))

	if m := consorciadoName.FindStringSubmatch(text); m != nil {
		name = strings.ToUpper(strings.TrimSpace(m[1]))
	}

	var found bool
	if name != "" {
		after := regexp.QuoteMeta(name) + `\s*` + identityInText.String()
		if re, err := regexp.Compile(`(?i)` + after); err == nil {
			if m := re.FindStringSubmatch(text); m != nil {
				id, found = buildIdentity(m[1], m[2], m[3])
			}
		}
	}
	if !found {
		if m := regexp.MustCompile(cotaLabel.String() + identityInText.String()).FindStringSubmatch(text); m != nil {
			id, found = buildIdentity(m[1], m[2], m[3])
		}
	}
	if !found {
		if m := identityInText.FindStringSubmatch(text); m != nil {
			id, found = buildIdentity(m[1], m[2], m[3])
		}
	}

	switch {
	case name != "" && found:
		return name, id, ""
	case name == "" && found:
		return "", Identity{}, "person name not found in document text"
	case name != "" && !found:
		return "", Identity{}, "identity pattern not found in document text"
	default:
		return "", Identity{}, "neither person name nor identity found in document text"
	}
}

func buildIdentity(group, account, digit string) (Identity, bool) {
	id := Identity{
		Group:   group,
		Account: strings.ReplaceAll(account, ",", ""),
		Digit:   digit,
	}
	return id, id.Valid()
}

var invalidFilenameChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// SanitizeName replaces filesystem-hostile characters with underscores.
func SanitizeName(s string) string {
	return invalidFilenameChars.ReplaceAllString(s, "_")
}

// Filename builds the canonical filed-document name for a person and identity.
func Filename(personName string, id Identity) string {
	return fmt.Sprintf("LANCE- %s %s.pdf", SanitizeName(personName), id)
}
