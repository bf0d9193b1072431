package artifact

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// FallbackStore writes to Primary and, when that fails, to Local so that
// translated output is never lost. The receipt reports which one was used.
type FallbackStore struct {
	Primary Store
	Local   *FileStore
	Logger  *zap.Logger
}

// NewFallbackStore wraps primary with a local recovery directory.
func NewFallbackStore(primary Store, recoveryDir string, logger *zap.Logger) *FallbackStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackStore{Primary: primary, Local: NewFileStore(recoveryDir), Logger: logger}
}

func (s *FallbackStore) PutArtifact(ctx context.Context, name string, content any) (Receipt, error) {
	rec, err := s.Primary.PutArtifact(ctx, name, content)
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, ErrInvalidName) {
		return Receipt{}, err
	}
	return s.saveLocally(name, err, func() (Receipt, error) {
		return s.Local.PutArtifact(context.WithoutCancel(ctx), name, content)
	})
}

func (s *FallbackStore) PutRaw(ctx context.Context, name, text string) (Receipt, error) {
	rec, err := s.Primary.PutRaw(ctx, name, text)
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, ErrInvalidName) {
		return Receipt{}, err
	}
	return s.saveLocally(name, err, func() (Receipt, error) {
		return s.Local.PutRaw(context.WithoutCancel(ctx), name, text)
	})
}

func (s *FallbackStore) saveLocally(name string, primaryErr error, write func() (Receipt, error)) (Receipt, error) {
	s.Logger.Warn("artifact write failed, saving locally",
		zap.String("artifact", name),
		zap.Error(primaryErr),
	)
	rec, err := write()
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %s: %v (local fallback: %v)", ErrPersistence, name, primaryErr, err)
	}
	rec.Fallback = true
	s.Logger.Info("artifact saved to recovery directory",
		zap.String("artifact", name),
		zap.String("path", rec.Path),
	)
	return rec, nil
}
