package entitlements

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestSubscriptionRecord_RoundTrip(t *testing.T) {
	cid := "cus_xyz789"
	start := int64(1700000000)
	end := int64(1702592000)
	cancel := false

	rec := &SubscriptionRecord{
		Status:             StatusActive,
		SubscriptionID:     "sub_123",
		CustomerID:         &cid,
		PriceID:            "price_test789",
		PlanID:             "plus",
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		CancelAtPeriodEnd:  &cancel,
		PaymentMethod:      &PaymentMethod{Brand: "visa", Last4: "4242"},
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got SubscriptionRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !reflect.DeepEqual(rec, &got) {
		t.Errorf("round trip lost data:\n got %+v\nwant %+v", got, *rec)
	}
}

func TestNoneRecord_JSONShape(t *testing.T) {
	data, err := json.Marshal(NoneRecord())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Subscription fields must be absent, customerId explicitly null.
	want := `{"status":"none","customerId":null}`
	if string(data) != want {
		t.Errorf("none record JSON = %s, want %s", data, want)
	}
}

func TestHasSubscription(t *testing.T) {
	if NoneRecord().HasSubscription() {
		t.Error("none record must not report a subscription")
	}

	cid := "cus_1"
	rec := &SubscriptionRecord{Status: StatusActive, CustomerID: &cid}
	if !rec.HasSubscription() {
		t.Error("active record must report a subscription")
	}

	var nilRec *SubscriptionRecord
	if nilRec.HasSubscription() {
		t.Error("nil record must not report a subscription")
	}
}

func TestRateLimitDecision_RetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		reset time.Time
		want  time.Duration
	}{
		{"reset in the past", now.Add(-time.Second), 0},
		{"reset now", now, 0},
		{"reset in 30s", now.Add(30 * time.Second), 30 * time.Second},
		{"fractional seconds round up", now.Add(1500 * time.Millisecond), 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := RateLimitDecision{ResetAt: tt.reset}
			if got := d.RetryAfter(now); got != tt.want {
				t.Errorf("RetryAfter = %v, want %v", got, tt.want)
			}
		})
	}
}
