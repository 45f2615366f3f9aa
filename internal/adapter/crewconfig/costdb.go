package crewconfig

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

// LoadCostDatabase reads and validates the cost database at path. An empty
// path, an unreadable file or an invalid document yields the built-in table;
// the failure is logged and returned alongside it.
func LoadCostDatabase(path string) (*tier.CostDatabase, error) {
	if path == "" {
		return tier.FallbackCostDatabase(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("read cost database: %w", err)
		slog.Warn("cost database unavailable, using built-in prices", "path", path, "error", err)
		return tier.FallbackCostDatabase(), err
	}
	db, err := tier.ParseCostDatabase(data)
	if err != nil {
		slog.Warn("cost database invalid, using built-in prices", "path", path, "error", err)
		return tier.FallbackCostDatabase(), err
	}
	slog.Info("cost database loaded", "path", path, "models", len(db.Models()))
	return db, nil
}
