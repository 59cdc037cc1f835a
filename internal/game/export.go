package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportResults appends a plain-text summary of a finished game to filename.
func ExportResults(snap Snapshot, filename string, at time.Time) error {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(formatResults(snap, at)); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

func formatResults(snap Snapshot, at time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Georacer Results - Lobby %s\n", snap.ID)
	fmt.Fprintf(&sb, "Finished: %s after %d round(s)\n", at.Format("2006-01-02 15:04:05"), snap.Round)
	fmt.Fprintf(&sb, "Points to win: %g, scorers per target: %d\n", snap.Settings.PointsToWin, snap.Settings.ScorersPerTarget)
	sb.WriteString(strings.Repeat("=", 50) + "\n")

	board := snap.Phase.Leaderboard
	if len(board) == 0 {
		sb.WriteString("No scores recorded\n")
	}
	for i, s := range board {
		fmt.Fprintf(&sb, "%d. %s: %g points\n", i+1, s.Player, s.Score)
	}
	sb.WriteString("\n")
	return sb.String()
}
