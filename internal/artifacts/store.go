// Package artifacts reads dialog artifacts from the runtime workspace.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

const artifactsDir = "artifacts"

// Store resolves artifact references under <rtws>/.dialogs. It implements
// schema.ArtifactResolver.
type Store struct {
	root string
}

func NewStore(rtws string) *Store {
	if rtws == "" {
		rtws = "."
	}
	return &Store{root: filepath.Join(rtws, ".dialogs")}
}

// ValidateRelPath rejects paths that could escape the artifacts/ subtree.
func ValidateRelPath(rel string) error {
	switch {
	case rel == "":
		return errors.New("empty artifact path")
	case strings.ContainsRune(rel, 0):
		return errors.New("artifact path contains NUL byte")
	case filepath.IsAbs(rel), strings.HasPrefix(rel, "/"), strings.HasPrefix(rel, `\`):
		return fmt.Errorf("artifact path %q is absolute", rel)
	}
	for _, seg := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return fmt.Errorf("artifact path %q contains traversal", rel)
		}
	}
	clean := filepath.ToSlash(filepath.Clean(rel))
	if !strings.HasPrefix(clean, artifactsDir+"/") {
		return fmt.Errorf("artifact path %q is outside %s/", rel, artifactsDir)
	}
	return nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\\x00")
}

// Path returns the file location of ref after validation.
func (s *Store) Path(ref schema.ArtifactRef) (string, error) {
	if err := ValidateRelPath(ref.RelPath); err != nil {
		return "", err
	}
	if !validSegment(ref.Status) || !validSegment(ref.RootID) {
		return "", fmt.Errorf("invalid artifact owner status=%q root=%q", ref.Status, ref.RootID)
	}

	dir := filepath.Join(s.root, ref.Status, ref.RootID)
	if ref.SelfID != "" && ref.SelfID != ref.RootID {
		if !validSegment(ref.SelfID) {
			return "", fmt.Errorf("invalid artifact owner self=%q", ref.SelfID)
		}
		dir = filepath.Join(dir, "subdialogs", ref.SelfID)
	}
	return filepath.Join(dir, filepath.FromSlash(ref.RelPath)), nil
}

// ReadArtifact loads the bytes of ref. A missing file yields an error
// wrapping schema.ErrArtifactNotFound.
func (s *Store) ReadArtifact(ctx context.Context, ref schema.ArtifactRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", schema.ErrAborted, err)
	}
	path, err := s.Path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", schema.ErrArtifactNotFound, ref.RelPath)
		}
		return nil, fmt.Errorf("read artifact %s: %w", ref.RelPath, err)
	}
	return data, nil
}
