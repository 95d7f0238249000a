package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/timmy/linkweaver/internal/domain"
	"github.com/timmy/linkweaver/internal/storage"
)

// Archiver writes generated blogs to object storage as JSON documents.
type Archiver struct {
	storage storage.ObjectStorage
	prefix  string
}

// NewArchiver creates an Archiver. prefix is prepended to every object key.
func NewArchiver(objectStorage storage.ObjectStorage, prefix string) *Archiver {
	return &Archiver{storage: objectStorage, prefix: prefix}
}

// Key returns the object key a blog is archived under.
func (a *Archiver) Key(blog *domain.GeneratedBlog) string {
	return path.Join(a.prefix, "projects", blog.ProjectID, "blogs", blog.ID+".json")
}

// Archive uploads blog and returns its object key.
func (a *Archiver) Archive(ctx context.Context, blog *domain.GeneratedBlog) (string, error) {
	data, err := json.Marshal(blog)
	if err != nil {
		return "", fmt.Errorf("encode blog %s: %w", blog.ID, err)
	}
	key := a.Key(blog)
	if err := a.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}
