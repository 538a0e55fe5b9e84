package repository

import (
	"context"
	"log/slog"

	"github.com/foxseedlab/huddle/internal/repository"
)

// discardRepository is used when DATABASE_URL is empty.
type discardRepository struct{}

func NewDiscardRepository() repository.ArchiveRepository {
	return discardRepository{}
}

func (discardRepository) SaveArchive(_ context.Context, input repository.SaveArchiveInput) (string, error) {
	slog.Debug("archive storage disabled; discarding session archive", "session_name", input.SessionName)
	return "", nil
}
