package extract

import (
	"regexp"
	"strings"
)

// Phone classification works on maximal runs of digits and dashes: a run
// is cut out of the surrounding text first, then matched against the
// anchored patterns below. A number embedded in a longer digit string
// (order numbers, project codes) therefore never classifies, without any
// need for lookaround.
var (
	mobileRe = regexp.MustCompile(`^1[3-9]\d{9}$`)
	// Area code plus local number, optional short extension.
	landlineRe     = regexp.MustCompile(`^0\d{2,3}-\d{7,8}(?:-\d{1,4})?$`)
	landlineBareRe = regexp.MustCompile(`^0\d{2,3}\d{7,8}$`)
	simpleDashRe   = regexp.MustCompile(`^\d{3,4}-\d{7,8}$`)

	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// digitRun is one maximal run of digits/dashes with its byte offsets in
// the source text.
type digitRun struct {
	start, end int
	text       string
}

func isRunByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '-'
}

// digitRuns scans s for maximal digit/dash runs. Leading and trailing
// dashes are trimmed off each run; runs without digits are dropped.
func digitRuns(s string) []digitRun {
	var runs []digitRun
	i := 0
	for i < len(s) {
		if !isRunByte(s[i]) {
			i++
			continue
		}
		j := i
		for j < len(s) && isRunByte(s[j]) {
			j++
		}
		start, end := i, j
		for start < end && s[start] == '-' {
			start++
		}
		for end > start && s[end-1] == '-' {
			end--
		}
		if end > start && strings.ContainsAny(s[start:end], "0123456789") {
			runs = append(runs, digitRun{start: start, end: end, text: s[start:end]})
		}
		i = j
	}
	return runs
}

// classifyPhone reports whether a trimmed digit run is a phone number.
func classifyPhone(run string) bool {
	switch {
	case mobileRe.MatchString(run),
		landlineRe.MatchString(run),
		landlineBareRe.MatchString(run),
		simpleDashRe.MatchString(run):
		return true
	}
	return false
}

// ExtractPhones returns the phone numbers found in s, in order of first
// appearance, deduplicated.
func ExtractPhones(s string) []string {
	var phones []string
	seen := map[string]struct{}{}
	for _, run := range digitRuns(s) {
		if !classifyPhone(run.text) {
			continue
		}
		if _, ok := seen[run.text]; ok {
			continue
		}
		seen[run.text] = struct{}{}
		phones = append(phones, run.text)
	}
	return phones
}

// ExtractEmails returns the validated, lowercased email addresses found
// in s, in order of first appearance, deduplicated.
func ExtractEmails(s string) []string {
	var emails []string
	seen := map[string]struct{}{}
	for _, m := range emailRe.FindAllString(s, -1) {
		addr := strings.ToLower(m)
		if !validEmail(addr) {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		emails = append(emails, addr)
	}
	return emails
}

func validEmail(addr string) bool {
	if len(addr) < 5 || len(addr) > 100 {
		return false
	}
	if strings.ContainsAny(addr[:1], "@.-") || strings.ContainsAny(addr[len(addr)-1:], "@.-") {
		return false
	}
	return strings.Contains(addr, "@") && strings.Contains(addr, ".")
}
