package biz

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
)

// Suggestion is one cleanup candidate, scored for reclaim value
type Suggestion struct {
	FileID string
	Name   string
	Size   int64
	Score  float64
	Reason string
}

// CleanupAdvisor ranks an owner's live files by how cheap they would be to
// give up: large, stale, never-viewed files score highest. It only suggests;
// it never deletes anything.
type CleanupAdvisor struct {
	files  FileRepo
	logger *logger.Logger
}

// NewCleanupAdvisor creates a cleanup advisor
func NewCleanupAdvisor(files FileRepo, log *logger.Logger) *CleanupAdvisor {
	return &CleanupAdvisor{files: files, logger: log}
}

const (
	ageFactorCapDays   = 30
	neverAccessedBonus = 50
	downloadScoreBase  = 10
)

// Suggest returns cleanup candidates sorted by descending score. When
// targetBytes is positive the list is cut off once the cumulative size covers
// the target; zero or negative returns the full ranking.
func (a *CleanupAdvisor) Suggest(ctx context.Context, ownerID string, targetBytes int64) ([]Suggestion, error) {
	files, err := a.files.ListLiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	suggestions := make([]Suggestion, 0, len(files))
	for _, f := range files {
		score, reason := scoreFile(f, now)
		suggestions = append(suggestions, Suggestion{
			FileID: f.ID,
			Name:   f.Name,
			Size:   f.Size,
			Score:  score,
			Reason: reason,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].FileID < suggestions[j].FileID
	})

	if targetBytes <= 0 {
		return suggestions, nil
	}

	var covered int64
	for i, s := range suggestions {
		covered += s.Size
		if covered >= targetBytes {
			return suggestions[:i+1], nil
		}
	}
	return suggestions, nil
}

// scoreFile computes size in MB, plus an age factor capped at 30 days since
// last access, plus a flat bonus for never-accessed files, plus a small boost
// for rarely downloaded ones.
func scoreFile(f *File, now time.Time) (float64, string) {
	score := float64(f.Size) / (1 << 20)

	var ageDays float64
	if f.LastAccessedAt != nil {
		ageDays = now.Sub(*f.LastAccessedAt).Hours() / 24
	} else {
		ageDays = now.Sub(f.CreatedAt).Hours() / 24
	}
	if ageDays < 0 {
		ageDays = 0
	}
	if ageDays > ageFactorCapDays {
		ageDays = ageFactorCapDays
	}
	score += ageDays

	neverAccessed := f.LastAccessedAt == nil
	if neverAccessed {
		score += neverAccessedBonus
	}

	downloadScore := downloadScoreBase - float64(f.DownloadCount)
	if downloadScore > 0 {
		score += downloadScore
	}

	switch {
	case neverAccessed:
		return score, "never accessed"
	case ageDays >= ageFactorCapDays:
		return score, fmt.Sprintf("not accessed for %d+ days", ageFactorCapDays)
	case f.DownloadCount == 0:
		return score, "never downloaded"
	default:
		return score, fmt.Sprintf("last accessed %.0f days ago", ageDays)
	}
}
