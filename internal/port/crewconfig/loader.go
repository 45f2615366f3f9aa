// Package crewconfig defines the port for loading per-member crew
// configuration documents.
package crewconfig

import (
	"context"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
)

// Loader loads the validated config of a single crew member.
// Implementations return an error wrapping domain.ErrNotFound for unknown ids.
type Loader interface {
	Load(ctx context.Context, crewID string) (*crew.Config, error)
}
