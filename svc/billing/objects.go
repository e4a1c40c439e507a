package billing

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// objectID decodes a provider reference that may be a bare id, an expanded
// object or null.
type objectID string

func (o *objectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = objectID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*o = objectID(obj.ID)
	return nil
}

type checkoutSessionObject struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     objectID          `json:"customer"`
	Subscription objectID          `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// subscriptionObject reads the period end from the top level or, on newer
// API versions, from the subscription items.
type subscriptionObject struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Customer         objectID          `json:"customer"`
	Metadata         map[string]string `json:"metadata"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	TrialEnd         int64             `json:"trial_end"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (s subscriptionObject) toSubscription() *Subscription {
	periodEnd := s.CurrentPeriodEnd
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > periodEnd {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	return &Subscription{
		ID:               s.ID,
		CustomerID:       string(s.Customer),
		Status:           s.Status,
		CurrentPeriodEnd: unixTime(periodEnd),
		TrialEnd:         unixTime(s.TrialEnd),
		Metadata:         s.Metadata,
	}
}

// invoiceObject carries the subscription id in the legacy top-level field or
// under parent.subscription_details on newer API versions.
type invoiceObject struct {
	ID           string   `json:"id"`
	Customer     objectID `json:"customer"`
	Subscription objectID `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription objectID          `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (i invoiceObject) subscriptionID() string {
	if i.Subscription != "" {
		return string(i.Subscription)
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func (i invoiceObject) metadata() map[string]string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Metadata
	}
	return nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// organizationRef parses the organization id from provider metadata.
// ok is false when the key is absent or not a uuid.
func organizationRef(md map[string]string) (uuid.UUID, bool) {
	raw, found := md[MetadataOrganizationID]
	if !found || raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
