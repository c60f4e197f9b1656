package interfaces

import (
	"context"

	"github.com/mikklepp/trickle/dto"
)

// EmailSender performs one delivery attempt for one recipient.
type EmailSender interface {
	Send(ctx context.Context, email *dto.OutboundEmail) (messageID string, err error)
}
