// Package imagehost stores profile photos in S3-compatible object storage.
package imagehost

import (
	"context"
	"io"
	"time"

	"github.com/dmitrijs2005/userhub/internal/server/models"
)

// Host is the image hosting contract used by the services.
//
// Upload stores body and returns where it is served from. Remove deletes an
// object by its external id and succeeds if the object is already gone. List
// enumerates hosted photos so they can be reconciled against the store.
type Host interface {
	Upload(ctx context.Context, body io.Reader, size int64, contentType string) (*models.ProfilePhoto, error)
	Remove(ctx context.Context, externalID string) error
	List(ctx context.Context) ([]Object, error)
}

// Object is a hosted photo as reported by List.
type Object struct {
	ExternalID   string
	LastModified time.Time
}
