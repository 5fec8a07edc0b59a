package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateCertificate(ctx context.Context, data CertificateData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(15,
		text.NewCol(12, "Vehicle Attestation", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)

	m.AddRow(10,
		text.NewCol(12, data.Reference, props.Text{
			Size:  12,
			Align: align.Center,
		}),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Issued to", props.Text{Style: fontstyle.Bold}),
			text.New(data.TenantName, props.Text{Top: 5}),
			text.New("Tenant code: "+data.TenantCode, props.Text{Top: 10, Size: 9}),
		),
		col.New(6).Add(
			text.New("Vehicle", props.Text{Style: fontstyle.Bold}),
			text.New(data.Registration, props.Text{Top: 5}),
			text.New(data.DocumentType, props.Text{Top: 10, Size: 9}),
		),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Valid from", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(data.ValidFrom, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Valid until", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(data.ValidTo, props.Text{Top: 5}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, data.AmountLine, props.Text{Size: 9}),
	)

	m.AddRow(10,
		text.NewCol(12, "Issued on "+data.IssuedAt, props.Text{Size: 8, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
