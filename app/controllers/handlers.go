package controllers

import (
	"github.com/ManuelReschke/CertLedger/internal/pkg/certificate"
	"github.com/ManuelReschke/CertLedger/internal/pkg/credential"
	"github.com/ManuelReschke/CertLedger/internal/pkg/enrollment"
	"github.com/ManuelReschke/CertLedger/internal/pkg/payment"
	"github.com/ManuelReschke/CertLedger/internal/pkg/promo"
)

// RedirectConfig holds the browser targets after a gateway callback.
type RedirectConfig struct {
	SuccessURL string
	FailureURL string
}

// Handlers serves the HTTP API on top of the domain services.
type Handlers struct {
	Issuer    *certificate.Issuer
	Verifier  *certificate.Verifier
	Renderer  *certificate.Renderer
	Codec     *credential.Codec
	Scanner   *credential.Scanner
	Activator *enrollment.Activator
	Promos    *promo.Engine
	Pricer    *payment.Pricer
	Gateway   *payment.GatewayService
	Proofs    *payment.ProofLedger
	Redirects RedirectConfig
}
