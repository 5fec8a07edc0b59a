// Package pdf renders attestation certificates. Rendering runs after the
// issuing transaction commits and never feeds back into the ledger.
package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

// CertificateData carries everything printed on an attestation document.
type CertificateData struct {
	Reference    string
	TenantName   string
	TenantCode   string
	Registration string
	DocumentType string
	ValidFrom    string
	ValidTo      string
	IssuedAt     string
	AmountLine   string
}

type Provider interface {
	GenerateCertificate(ctx context.Context, data CertificateData) (io.Reader, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateCertificate(ctx context.Context, data CertificateData) (io.Reader, error) {
	return nil, nil
}
