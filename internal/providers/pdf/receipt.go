package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrIncompleteReceipt = errors.New("receipt_missing_order")

type MarotoRenderer struct{}

func NewMarotoRenderer() *MarotoRenderer {
	return &MarotoRenderer{}
}

func (p *MarotoRenderer) Receipt(ctx context.Context, r Receipt) ([]byte, error) {
	if r.MerchantOrderID == "" {
		return nil, ErrIncompleteReceipt
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, r.EventName, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Payment Receipt", props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   3,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Date: "+r.EventDate, props.Text{Size: 9}),
			text.New("Venue: "+r.Venue, props.Text{Size: 9, Top: 4}),
			text.New("Reporting time: "+r.ReportingTime, props.Text{Size: 9, Top: 8}),
		),
		col.New(6).Add(
			text.New(r.Organizer, props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
			text.New(r.SupportEmail, props.Text{Size: 9, Top: 4, Align: align.Right}),
		),
	)
	m.AddRow(4, line.NewCol(12))

	m.AddRow(10, text.NewCol(12, "Participant", props.Text{Style: fontstyle.Bold, Size: 11, Top: 2}))
	for _, f := range []field{
		{"Name", r.ParticipantName},
		{"Email", r.Email},
		{"Phone", r.Phone},
		{"Race category", r.RaceCategory},
		{"T-shirt size", r.TshirtSize},
		{"Registration ID", r.RegistrationID},
	} {
		addField(m, f)
	}

	m.AddRow(10, text.NewCol(12, "Payment", props.Text{Style: fontstyle.Bold, Size: 11, Top: 2}))
	for _, f := range []field{
		{"Order ID", r.MerchantOrderID},
		{"Transaction ID", r.TransactionID},
		{"Payment mode", r.PaymentMode},
		{"Paid on", r.PaidAt},
	} {
		addField(m, f)
	}

	m.AddRow(4, line.NewCol(12))
	m.AddRow(12,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 10, Style: fontstyle.Bold, Top: 2}),
		text.NewCol(2, "INR "+r.Amount, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right, Top: 2}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

type field struct {
	label string
	value string
}

func addField(m core.Maroto, f field) {
	if f.value == "" {
		return
	}
	m.AddRow(6,
		text.NewCol(4, f.label, props.Text{Size: 9}),
		text.NewCol(8, f.value, props.Text{Size: 9}),
	)
}
