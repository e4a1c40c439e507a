package billing

import "strings"

// Config is read from the environment.
type Config struct {
	SecretKey       string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret   string `env:"STRIPE_WEBHOOK_SECRET,required"`
	CatalogPath     string `env:"BILLING_CATALOG_PATH" envDefault:"config/billing.yaml"`
	SuccessURL      string `env:"BILLING_SUCCESS_URL" envDefault:"http://localhost:8080/checkout/success"`
	CancelURL       string `env:"BILLING_CANCEL_URL" envDefault:"http://localhost:8080/billing"`
	PortalReturnURL string `env:"BILLING_PORTAL_RETURN_URL" envDefault:"http://localhost:8080/billing"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return ErrMissingAPIKey
	}
	if strings.TrimSpace(c.WebhookSecret) == "" {
		return ErrMissingWebhookSecret
	}
	return nil
}
