package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// PaymentFailed tells an organization owner that a renewal charge failed.
func PaymentFailed(orgName, billingURL string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<!doctype html><html><body>`+
			`<p>We could not collect the latest payment for <strong>`+templ.EscapeString(orgName)+`</strong>.</p>`+
			`<p>Your subscription is past due. Update your payment method to keep generating images.</p>`+
			`<p><a href="`+templ.EscapeString(billingURL)+`">Manage billing</a></p>`+
			`</body></html>`)
		return err
	})
}
