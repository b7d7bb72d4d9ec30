package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type SlipData struct {
	PickupID     string
	Status       string
	RequestedAt  string
	CompletedAt  string
	ContactName  string
	ContactPhone string
	Location     string
	TotalItems   int
	TotalWeight  string
	RewardPoints int64
	Items        []SlipItem
}

type SlipItem struct {
	Name     string
	Category string
	Quantity string
	Weight   string
}

func (p *PDFProvider) GeneratePickupSlip(ctx context.Context, slip SlipData) (io.Reader, error) {
	if slip.PickupID == "" {
		return nil, fmt.Errorf("pickup slip requires a pickup id")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, "Waste pickup slip", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, slip.Status, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   3,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Pickup: "+slip.PickupID, props.Text{Top: 0}),
			text.New("Requested: "+slip.RequestedAt, props.Text{Top: 4}),
			text.New("Completed: "+orDash(slip.CompletedAt), props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Contact", props.Text{Style: fontstyle.Bold}),
			text.New(orDash(slip.ContactName), props.Text{Top: 4}),
			text.New(orDash(slip.ContactPhone), props.Text{Top: 8}),
			text.New(orDash(slip.Location), props.Text{Top: 12}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Material", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Category", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Quantity", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Weight (g)", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range slip.Items {
		m.AddRow(8,
			text.NewCol(6, item.Name, props.Text{Size: 9}),
			text.NewCol(2, item.Category, props.Text{Size: 9}),
			text.NewCol(2, item.Quantity, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Weight, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Items", props.Text{Size: 9}),
		text.NewCol(2, fmt.Sprintf("%d", slip.TotalItems), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total weight (g)", props.Text{Size: 9}),
		text.NewCol(2, slip.TotalWeight, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Reward points", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, fmt.Sprintf("%d", slip.RewardPoints), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
