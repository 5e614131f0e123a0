package search

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// splitKeywords splits a raw value on ASCII or full-width commas.
func splitKeywords(raw string) []string {
	raw = strings.ReplaceAll(raw, "，", ",")
	var parts []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// LoadKeywords merges keywords from CLI values and an optional keyword
// file. File lines may hold one keyword or a comma-separated list;
// blank lines and '#' comment lines are skipped. The result is
// order-preserving and deduplicated.
func LoadKeywords(values []string, file string) ([]string, error) {
	var result []string
	seen := make(map[string]struct{})

	add := func(raw string) {
		for _, kw := range splitKeywords(raw) {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			result = append(result, kw)
		}
	}

	for _, v := range values {
		add(v)
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, eris.Wrapf(err, "search: read keyword file %s", file)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			add(line)
		}
	}

	return result, nil
}
