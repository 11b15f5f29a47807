package dupes

import (
	"fmt"
	"strings"
	"time"
)

const (
	noteSeparator    = "\n\n"
	noteTimeLayout   = "2006-01-02 15:04:05 MST"
	batchMarker      = "MANUAL DUPLICATE DETECTION"
	incrementalMark  = "🚨 AUTOMATIC DUPLICATE DETECTION"
	ReopenNoteMarker = "✅ MANUALLY REOPENED"
)

// AppendNote never rewrites existing text; entries are separated by a blank line.
func AppendNote(existing, entry string) string {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return existing
	}
	if strings.TrimSpace(existing) == "" {
		return entry
	}
	return existing + noteSeparator + entry
}

// NoteEntries splits a note into its blank-line separated entries.
func NoteEntries(note string) []string {
	out := []string{}
	for _, entry := range strings.Split(note, noteSeparator) {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func detectionMarker(trigger Trigger) string {
	if trigger == TriggerIncremental {
		return incrementalMark
	}
	return batchMarker
}

func detectionNote(trigger Trigger, siblings []string, at time.Time, autoCancel bool) string {
	status := "Status: FLAGGED - Needs manual review"
	if autoCancel {
		status = "Status: CANCELED - Needs manual review"
	}
	return strings.Join([]string{
		detectionMarker(trigger),
		"Duplicate găsite: " + strings.Join(siblings, ", "),
		"Detection time: " + at.UTC().Format(noteTimeLayout),
		status,
	}, "\n")
}

func cancelNote(trigger Trigger, siblings []string) string {
	origin := "Manual"
	if trigger == TriggerIncremental {
		origin = "Automatic"
	}
	return fmt.Sprintf("%s duplicate detection - matches orders: %s", origin, strings.Join(siblings, ", "))
}

func reopenNote(at time.Time) string {
	return strings.Join([]string{
		ReopenNoteMarker,
		"Order reopened at: " + at.UTC().Format(noteTimeLayout),
		"Considered legitimate order, not a duplicate.",
	}, "\n")
}
