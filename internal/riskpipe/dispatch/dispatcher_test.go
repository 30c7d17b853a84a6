package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/bridge"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/model"
)

type fakeStore struct {
	appended []*model.Alert
	err      error
}

func (f *fakeStore) Append(_ context.Context, a *model.Alert) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.appended = append(f.appended, a)
	return int64(len(f.appended)), nil
}

type fakeBroadcaster struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakeBroadcaster) Publish(_ context.Context, topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeBroadcaster) Close() error { return nil }

type fakeEmail struct {
	subjects []string
	err      error
}

func (f *fakeEmail) Send(_ context.Context, _ []string, subject, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	return nil
}

type fakeProducer struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakeProducer) Produce(_ context.Context, topic, _ string, value []byte, _ map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, value)
	return nil
}

func newTestDispatcher(store Store, bcast Broadcaster, email EmailSender,
	bridges *bridge.Registry, producer Producer) *Dispatcher {
	return New(Config{
		DedupWindow:     5 * time.Minute,
		EmailRecipients: []string{"soc@example.com"},
		BroadcastTopic:  "alerts.live",
		CrossChainTopic: "alerts.crosschain",
		TravelRule:      TravelRule{ThresholdUSD: 3000},
	}, NewMemoryDeduper(16), store, bcast, email, bridges, producer, nil)
}

func mediumAlert() *model.Alert {
	a := model.NewAlert(model.AlertLargeTransfer, model.SeverityMedium, "Large transfer", "d")
	a.Address = "0xa"
	a.RiskScore = 0.5
	return a
}

func TestDispatchPersistsAndBroadcasts(t *testing.T) {
	store := &fakeStore{}
	bcast := &fakeBroadcaster{}
	email := &fakeEmail{}
	d := newTestDispatcher(store, bcast, email, nil, nil)

	require.NoError(t, d.Dispatch(context.Background(), mediumAlert()))

	require.Len(t, store.appended, 1)
	require.Len(t, bcast.payloads, 1)
	assert.Equal(t, []string{"alerts.live"}, bcast.topics)
	assert.Empty(t, email.subjects, "MEDIUM does not email")

	var sent model.Alert
	require.NoError(t, json.Unmarshal(bcast.payloads[0], &sent))
	assert.Equal(t, model.AlertLargeTransfer, sent.AlertType)

	st := d.Stats()
	assert.Equal(t, uint64(1), st.Dispatched)
}

func TestDispatchSuppressesDuplicates(t *testing.T) {
	store := &fakeStore{}
	d := newTestDispatcher(store, nil, nil, nil, nil)

	require.NoError(t, d.Dispatch(context.Background(), mediumAlert()))
	require.NoError(t, d.Dispatch(context.Background(), mediumAlert()))

	assert.Len(t, store.appended, 1, "same fingerprint persisted once")
	st := d.Stats()
	assert.Equal(t, uint64(1), st.Dispatched)
	assert.Equal(t, uint64(1), st.Suppressed)
}

func TestDispatchDifferentBucketNotSuppressed(t *testing.T) {
	store := &fakeStore{}
	d := newTestDispatcher(store, nil, nil, nil, nil)

	a := mediumAlert()
	b := mediumAlert()
	b.RiskScore = 0.95

	require.NoError(t, d.Dispatch(context.Background(), a))
	require.NoError(t, d.Dispatch(context.Background(), b))
	assert.Len(t, store.appended, 2)
}

func TestDispatchPersistFailureIsRetryable(t *testing.T) {
	store := &fakeStore{err: errors.New("pg down")}
	d := newTestDispatcher(store, nil, nil, nil, nil)

	a := mediumAlert()
	require.Error(t, d.Dispatch(context.Background(), a))

	// The fingerprint must not be recorded, so the retry is not suppressed.
	store.err = nil
	require.NoError(t, d.Dispatch(context.Background(), a))
	assert.Len(t, store.appended, 1)
	assert.Zero(t, d.Stats().Suppressed)
}

func TestDispatchEmailsHighAndAbove(t *testing.T) {
	email := &fakeEmail{}
	d := newTestDispatcher(&fakeStore{}, nil, email, nil, nil)

	crit := model.NewAlert(model.AlertSanctioned, model.SeverityCritical, "Sanctioned", "d")
	crit.Address = "0xbad"
	require.NoError(t, d.Dispatch(context.Background(), crit))
	require.Len(t, email.subjects, 1)
	assert.Contains(t, email.subjects[0], "CRITICAL")

	require.NoError(t, d.Dispatch(context.Background(), mediumAlert()))
	assert.Len(t, email.subjects, 1, "MEDIUM stays quiet")
}

func TestDispatchSideEffectFailuresAreAbsorbed(t *testing.T) {
	store := &fakeStore{}
	bcast := &fakeBroadcaster{err: errors.New("redis down")}
	email := &fakeEmail{err: errors.New("smtp down")}
	d := newTestDispatcher(store, bcast, email, nil, nil)

	crit := model.NewAlert(model.AlertSanctioned, model.SeverityCritical, "Sanctioned", "d")
	crit.Address = "0xbad"
	require.NoError(t, d.Dispatch(context.Background(), crit), "best-effort steps never fail the dispatch")

	assert.Len(t, store.appended, 1)
	st := d.Stats()
	assert.Equal(t, uint64(1), st.BroadcastFailures)
	assert.Equal(t, uint64(1), st.EmailFailures)
}

func TestDispatchWithoutStoreDegrades(t *testing.T) {
	d := newTestDispatcher(nil, nil, nil, nil, nil)
	require.NoError(t, d.Dispatch(context.Background(), mediumAlert()))
	assert.Equal(t, uint64(1), d.Stats().Dispatched)
}

func TestDispatchEnsuresIdentity(t *testing.T) {
	d := newTestDispatcher(&fakeStore{}, nil, nil, nil, nil)
	a := &model.Alert{AlertType: model.AlertMixer, Severity: model.SeverityHigh, Title: "t", Address: "0xa"}
	require.NoError(t, d.Dispatch(context.Background(), a))
	assert.NotEmpty(t, a.AlertID)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestDispatchBridgeEnrichment(t *testing.T) {
	bridges := bridge.NewRegistry()
	require.NoError(t, bridges.Register(bridge.Contract{
		Address:           "0xbridge",
		Chain:             "ethereum",
		Name:              "Wormhole",
		BridgeType:        "lock_and_mint",
		CounterpartChains: []string{"solana"},
	}))
	producer := &fakeProducer{}
	d := newTestDispatcher(&fakeStore{}, nil, nil, bridges, producer)

	a := model.NewAlert(model.AlertCrossChainArb, model.SeverityMedium, "Arb", "d")
	a.Address = "0xtrader"
	a.Meta("bridge_address", "0xBRIDGE")
	a.Meta("chain", "ethereum")

	require.NoError(t, d.Dispatch(context.Background(), a))

	assert.Equal(t, "Wormhole", a.Metadata["bridge_name"])
	assert.Equal(t, "lock_and_mint", a.Metadata["bridge_type"])
	assert.Equal(t, "solana", a.Metadata["counterpart_chain"])

	require.Equal(t, []string{"alerts.crosschain"}, producer.topics)
	var republished model.Alert
	require.NoError(t, json.Unmarshal(producer.payloads[0], &republished))
	assert.Equal(t, "Wormhole", republished.Metadata["bridge_name"])
}

func TestDispatchUnknownBridgeSkipsEnrichment(t *testing.T) {
	producer := &fakeProducer{}
	d := newTestDispatcher(&fakeStore{}, nil, nil, bridge.NewRegistry(), producer)

	a := model.NewAlert(model.AlertCrossChainArb, model.SeverityMedium, "Arb", "d")
	a.Address = "0xtrader"
	a.Meta("bridge_address", "0xnobody")
	a.Meta("chain", "ethereum")

	require.NoError(t, d.Dispatch(context.Background(), a))
	assert.NotContains(t, a.Metadata, "bridge_name")
	assert.Empty(t, producer.topics)
}

func TestDispatchComplianceMetadata(t *testing.T) {
	d := newTestDispatcher(&fakeStore{}, nil, nil, nil, nil)

	a := model.NewAlert(model.AlertVASPTransfer, model.SeverityMedium, "VASP transfer", "d")
	a.Address = "0xa"
	a.Meta("value_usd", 5000.0)
	a.Meta("originator", "Alice VASP")
	a.Meta("beneficiary", "Bob VASP")

	require.NoError(t, d.Dispatch(context.Background(), a))
	assert.Equal(t, ComplianceCompliant, a.Metadata["compliance_status"])
	assert.Equal(t, uint64(1), d.Stats().ComplianceChecked)

	b := mediumAlert() // LARGE_TRANSFER without identity fields
	b.Meta("value_usd", 5000.0)
	require.NoError(t, d.Dispatch(context.Background(), b))
	assert.Equal(t, ComplianceMissingOriginator, b.Metadata["compliance_status"])

	c := model.NewAlert(model.AlertMixer, model.SeverityHigh, "Mixer", "d")
	c.Address = "0xa"
	require.NoError(t, d.Dispatch(context.Background(), c))
	assert.NotContains(t, c.Metadata, "compliance_status", "only transfer-shaped alerts are checked")
}
