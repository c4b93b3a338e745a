package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance bounds "did you mean?" suggestions.
const maxLevenshteinDistance = 3

// knownKeys maps each table to the keys it accepts. The empty table name
// holds top-level keys. Bookmarks are free-form and never reported.
var knownKeys = map[string][]string{
	"": {"host", "watch", "remote", "filter", "logging", "bookmarks"},
	"watch": {
		"poll_interval", "debounce", "conflict_strategy",
	},
	"remote": {
		"transport", "ssh_command", "scp_command", "rsync_command",
		"command_timeout", "transfer_timeout", "max_commands_per_second",
		"bandwidth_limit", "port", "user", "identity_file", "known_hosts",
	},
	"filter":  {"exclude"},
	"logging": {"log_level", "log_format"},
}

// checkUnknownKeys reports every undecoded key with a suggestion when a
// known key is close enough.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		if len(key) == 0 || key[0] == "bookmarks" {
			continue
		}

		err := unknownKeyError(key)
		if seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	table, field := "", key[0]
	if len(key) > 1 {
		if _, ok := knownKeys[key[0]]; !ok {
			// Unknown table: only the table itself is worth reporting.
			return unknownKeyError(key[:1])
		}

		table, field = key[0], key[1]
	}

	name := key.String()
	if suggestion := closestMatch(field, knownKeys[table]); suggestion != "" {
		if table != "" {
			suggestion = table + "." + suggestion
		}

		return fmt.Errorf("unknown config key %q (did you mean %q?)", name, suggestion)
	}

	return fmt.Errorf("unknown config key %q", name)
}

// closestMatch returns the candidate with the smallest edit distance to s,
// or "" if none is within maxLevenshteinDistance. Ties go to the
// alphabetically first candidate.
func closestMatch(s string, candidates []string) string {
	sorted := slices.Sorted(slices.Values(candidates))
	best, bestDist := "", maxLevenshteinDistance+1

	for _, c := range sorted {
		if d := levenshtein(strings.ToLower(s), c); d < bestDist {
			best, bestDist = c, d
		}
	}

	return best
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i

		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}

			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(rb)]
}
