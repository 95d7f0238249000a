package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Store groups the repositories that share one database handle.
type Store struct {
	db           *gorm.DB
	Projects     *ProjectRepository
	Requirements *RequirementRepository
	Sites        *SiteRepository
	Placements   *PlacementRepository
	Blogs        *BlogRepository
	Credentials  *CredentialRepository
}

// NewStore binds every repository to db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:           db,
		Projects:     NewProjectRepository(db),
		Requirements: NewRequirementRepository(db),
		Sites:        NewSiteRepository(db),
		Placements:   NewPlacementRepository(db),
		Blogs:        NewBlogRepository(db),
		Credentials:  NewCredentialRepository(db),
	}
}

// Transaction runs fn with a Store bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
