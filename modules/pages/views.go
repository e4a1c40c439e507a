package pages

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/creatorkit/handler"
	orgsvc "github.com/dmitrymomot/creatorkit/svc/organization"
)

const datastarScript = `<script type="module" src="https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.5/bundles/datastar.js"></script>`

func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>%s · creatorkit</title>%s</head><body><main id="content">`,
			templ.EscapeString(title), datastarScript); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

func html(format string, args ...any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, format, args...)
		return err
	})
}

func upsellPage(org *orgsvc.Summary) templ.Component {
	if org == nil {
		return layout("Get started", html(`<h1>Create an organization</h1><p>Create an organization to start your free trial.</p>`))
	}
	return layout("Upgrade", html(
		`<h1>Unlock %s</h1><p>Your workspace needs an active subscription.</p>`+
			`<div data-signals="{organization_id: '%s'}">`+
			`<button data-on-click="@post('/api/billing/checkout', {contentType: 'json'})">Start free trial</button></div>`,
		templ.EscapeString(org.Name), org.ID.String(),
	))
}

func billingPage(org *orgsvc.Summary) templ.Component {
	if org == nil {
		return layout("Billing", html(`<h1>Billing</h1><p>You are not a member of any organization.</p>`))
	}
	periodEnd := "–"
	if org.CurrentPeriodEnd != nil {
		periodEnd = org.CurrentPeriodEnd.Format("2006-01-02")
	}
	return layout("Billing", html(
		`<h1>Billing for %s</h1><dl><dt>Status</dt><dd id="subscription-status">%s</dd>`+
			`<dt>Renews</dt><dd>%s</dd><dt>Credits</dt><dd>%s</dd></dl>`+
			`<a href="/api/billing/portal?organization_id=%s">Manage billing</a>`,
		templ.EscapeString(org.Name), templ.EscapeString(org.SubscriptionStatus.String()),
		periodEnd, strconv.Itoa(org.Credits), org.ID.String(),
	))
}

func checkoutSuccessPage() templ.Component {
	return layout("Thank you", html(`<h1>You're all set</h1><p>Your subscription is being activated.</p><a href="/dashboard">Go to dashboard</a>`))
}

func dashboardPage(org *orgsvc.Summary) templ.Component {
	return layout("Dashboard", html(
		`<h1>%s</h1><p><span id="credits">%d</span> credits left · %d of %d seats used</p>`+
			`<form data-signals="{organization_id: '%s', prompt: '', image_urls: [], generation: {status: ''}}"`+
			` data-on-submit="@post('/api/generations/stream')">`+
			`<textarea data-bind-prompt maxlength="2000"></textarea>`+
			`<button type="submit">Generate</button><output data-text="$generation.status"></output></form>`,
		templ.EscapeString(org.Name), org.Credits, org.MemberCount, org.MaxSeats, org.ID.String(),
	))
}

// ErrorPage renders failures for browser requests.
func ErrorPage(p handler.ErrorPageParams) templ.Component {
	return layout("Error", html(`<h1>%d</h1><p>%s</p><small>Request %s</small>`,
		p.StatusCode, templ.EscapeString(p.Message), templ.EscapeString(p.RequestID)))
}
