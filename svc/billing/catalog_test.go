package billing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorkit/svc/billing"
)

func TestParseCatalog(t *testing.T) {
	t.Parallel()

	t.Run("single plan becomes default with trial", func(t *testing.T) {
		t.Parallel()
		c, err := billing.ParseCatalog([]byte("plans:\n  pro:\n    price_id: price_pro\n"))
		require.NoError(t, err)

		p, err := c.Plan("")
		require.NoError(t, err)
		assert.Equal(t, "pro", p.ID)
		assert.Equal(t, int64(billing.DefaultTrialDays), p.TrialDays)
		assert.Zero(t, p.ActivationFee.Amount)
	})

	tests := map[string]string{
		"no plans":          "default_plan: pro\n",
		"missing price":     "plans:\n  pro:\n    name: Pro\n",
		"unknown default":   "default_plan: team\nplans:\n  pro:\n    price_id: p\n",
		"fee without curr":  "plans:\n  pro:\n    price_id: p\n    activation_fee:\n      amount: 100\n",
		"negative fee":      "plans:\n  pro:\n    price_id: p\n    activation_fee:\n      amount: -1\n      currency: usd\n",
		"not yaml":          "plans: [",
		"ambiguous default": "plans:\n  a:\n    price_id: p\n  b:\n    price_id: q\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := billing.ParseCatalog([]byte(doc))
			assert.ErrorIs(t, err, billing.ErrInvalidCatalog)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "billing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  pro:\n    price_id: price_pro\n    trial_days: 7\n"), 0o600))

	c, err := billing.LoadCatalog(path)
	require.NoError(t, err)
	p, err := c.Plan("pro")
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.TrialDays)

	_, err = c.Plan("team")
	assert.ErrorIs(t, err, billing.ErrPlanNotFound)

	_, err = billing.LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, billing.ErrInvalidCatalog)
}
