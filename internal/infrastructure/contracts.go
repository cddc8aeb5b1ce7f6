package infrastructure

import (
	"context"

	"github.com/agrovision/leaf-diagnosis/internal/entity"
)

type (
	EventsSender interface {
		SendEvents(ctx context.Context, events []*entity.OutboxEvent) error
		Close() error
	}
)
