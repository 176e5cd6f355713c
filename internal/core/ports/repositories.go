package ports

import (
	"context"

	"github.com/samirrijal/forestlens/internal/core/domain"
)

// AnalysisRunRepository persists completed analyses (side-write only).
type AnalysisRunRepository interface {
	Insert(ctx context.Context, event *domain.AnalysisCompleted) error
}
