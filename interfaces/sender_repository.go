package interfaces

import (
	"context"

	"github.com/mikklepp/trickle/internal/models"
)

type SenderRepository interface {
	Create(ctx context.Context, sender *models.Sender) (string, error)
	GetByAddress(ctx context.Context, emailAddress string) (*models.Sender, error)
}
