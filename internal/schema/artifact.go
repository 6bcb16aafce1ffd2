package schema

import "context"

// ArtifactResolver loads artifact bytes for multipart tool results.
// Implementations return an error wrapping ErrArtifactNotFound when the
// artifact does not exist.
type ArtifactResolver interface {
	ReadArtifact(ctx context.Context, ref ArtifactRef) ([]byte, error)
}
