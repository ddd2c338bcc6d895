package publisher

import (
	"context"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

type ProximityPublisher interface {
	PublishChange(ctx context.Context, change *domain.ProximityChange) error
}
