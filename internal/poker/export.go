package poker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ExportRound appends the revealed votes of r to a plain-text file.
func ExportRound(r *Room, filename string, at time.Time) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Room %s (owner %s, preset %s)\n", r.ID, r.Owner, r.VotingPreset))
	sb.WriteString(fmt.Sprintf("Revealed: %s\n", at.Format("2006-01-02 15:04:05")))
	sb.WriteString(strings.Repeat("-", 40) + "\n")

	votes := r.RevealedVotes()
	for _, v := range votes {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", v.Name, v.Vote))
	}

	// group identical estimates so the consensus is visible at a glance
	counts := map[string]int{}
	for _, v := range votes {
		counts[v.Vote.String()]++
	}
	if len(counts) > 0 {
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if counts[keys[i]] != counts[keys[j]] {
				return counts[keys[i]] > counts[keys[j]]
			}
			return keys[i] < keys[j]
		})
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s x%d", k, counts[k]))
		}
		sb.WriteString("Tally: " + strings.Join(parts, ", ") + "\n")
	}

	var silent []string
	for _, v := range r.Votes {
		if v.Vote == nil {
			silent = append(silent, v.Name)
		}
	}
	if len(silent) > 0 {
		sb.WriteString("No vote: " + strings.Join(silent, ", ") + "\n")
	}
	sb.WriteString("\n")

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}
