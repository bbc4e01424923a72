package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/pkg/config"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	withdrawalID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.WithdrawalEvent{
		WithdrawalID: withdrawalID,
		WalletID:     uuid.New(),
		ExternalRef:  "wd_1",
		AmountMinor:  50000,
		Status:       enums.WithdrawalStatusFailed,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventWithdrawalFailed,
		AggregateType: enums.AggregateWithdrawal,
		AggregateID:   withdrawalID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "settlement-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.WithdrawalEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.WithdrawalID != withdrawalID || payload.AmountMinor != 50000 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
	if resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing occurred_at")
	}
}

func TestEventRegistryRoutesAlerts(t *testing.T) {
	reg := newTestEventRegistry(t)
	cases := []struct {
		eventType enums.OutboxEventType
		aggregate enums.OutboxAggregateType
		payload   interface{}
	}{
		{enums.EventWalletFrozen, enums.AggregateWallet, payloads.WalletFrozenEvent{WalletID: uuid.New(), Reason: "drift"}},
		{enums.EventWalletDriftDetected, enums.AggregateWallet, payloads.WalletDriftDetectedEvent{WalletID: uuid.New()}},
		{enums.EventWithdrawalStuck, enums.AggregateWithdrawal, payloads.WithdrawalStuckEvent{ExternalRef: "wd_2"}},
		{enums.EventReconciliationUnknown, enums.AggregateWithdrawal, payloads.ReconciliationUnknownEvent{ExternalRef: "wd_x"}},
		{enums.EventSuspiciousActivity, enums.AggregateSuspiciousActivity, payloads.SuspiciousActivityFlaggedEvent{SubjectID: "u1"}},
	}
	for _, tc := range cases {
		resolved, err := reg.Resolve(models.OutboxEvent{
			EventType:     tc.eventType,
			AggregateType: tc.aggregate,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, mustMarshal(t, tc.payload)),
		})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.eventType, err)
		}
		if resolved.Descriptor.Topic != "alerts-topic" {
			t.Fatalf("%s: unexpected topic %q", tc.eventType, resolved.Descriptor.Topic)
		}
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("order_created"),
		AggregateType: enums.AggregateWallet,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %T", err)
	}
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventWalletFrozen,
		AggregateType: enums.AggregateWithdrawal,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"wallet_id":"00000000-0000-0000-0000-000000000000"}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
}

func TestEventRegistryResolveMissingAggregateID(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventWithdrawalCompleted,
		AggregateType: enums.AggregateWithdrawal,
		AggregateID:   uuid.Nil,
		Payload:       mustEnvelope(t, []byte(`{}`)),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
}

func TestEventRegistryResolveNullPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventWithdrawalCompleted,
		AggregateType: enums.AggregateWithdrawal,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte("null")),
	}

	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	cfg := config.PubSubConfig{
		SettlementTopic: "settlement-topic",
		AlertsTopic:     "alerts-topic",
	}
	reg, err := NewEventRegistry(cfg)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
