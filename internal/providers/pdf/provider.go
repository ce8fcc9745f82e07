package pdf

import (
	"context"

	"go.uber.org/fx"
)

// Receipt is the payment confirmation printed for a registered participant.
type Receipt struct {
	EventName     string
	EventDate     string
	Venue         string
	ReportingTime string
	Organizer     string
	SupportEmail  string

	ParticipantName string
	Email           string
	Phone           string
	RaceCategory    string
	TshirtSize      string
	RegistrationID  string

	MerchantOrderID string
	TransactionID   string
	PaymentMode     string
	Amount          string
	PaidAt          string
}

type Renderer interface {
	Receipt(ctx context.Context, r Receipt) ([]byte, error)
}

// NoOpRenderer produces no document; callers send mail without an attachment.
type NoOpRenderer struct{}

func (NoOpRenderer) Receipt(ctx context.Context, r Receipt) ([]byte, error) {
	return nil, nil
}

var Module = fx.Module("providers.pdf",
	fx.Provide(func() Renderer { return NewMarotoRenderer() }),
)
