package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/config"
	"tradecore/internal/intent"
	"tradecore/internal/metrics"
	"tradecore/internal/model"
	"tradecore/internal/risk"
	"tradecore/internal/store/ndjson"
	"tradecore/internal/strategy"
)

type fakeStateSource struct {
	safe      model.SafetyState
	shadowed  bool
	shadowErr error
}

func (f *fakeStateSource) ReadSafetyState(ctx context.Context) (model.SafetyState, bool, error) {
	return f.safe, true, nil
}

func (f *fakeStateSource) ReadHeartbeat(ctx context.Context, serviceID string, staleAfter time.Duration) (model.HeartbeatInfo, error) {
	return model.HeartbeatInfo{ServiceID: serviceID}, nil
}

func (f *fakeStateSource) ShadowMode(ctx context.Context, userID string) (bool, error) {
	return f.shadowed, f.shadowErr
}

func safeState() model.SafetyState {
	ts := time.Now().UTC()
	return model.SafetyState{
		TradingEnabled:   true,
		MarketDataFresh:  true,
		MarketDataLastTS: &ts,
		UpdatedAt:        ts,
	}
}

func newTestAgent(t *testing.T, state *fakeStateSource) (*agent, *bytes.Buffer, chan model.OrderProposal) {
	t.Helper()

	archive, err := ndjson.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { archive.Close() })

	var intents bytes.Buffer
	proposals := make(chan model.OrderProposal, 4)
	prices := newPriceCache()
	prices.Update("AAPL", 200)

	a := &agent{
		cfg: &config.Config{
			RepoID:          "tradecore",
			AgentName:       "test-agent",
			DefaultOrderQty: 2,
		},
		metrics: metrics.New(),
		reader:  state,
		risk:    risk.New(risk.Config{}, nil, nil, nil, nil, nil),
		acct: risk.Account{
			TenantID: "t1", UserID: "u1", StrategyID: "momentum",
			StartingEquity: decimal.RequireFromString("100000"),
		},
		emitter:   intent.NewEmitter(&intents, nil),
		archive:   archive,
		prices:    prices,
		book:      newPositions(),
		proposals: proposals,
		paperMode: true,
	}
	return a, &intents, proposals
}

func buySignal() strategy.Signal {
	return strategy.Signal{
		StrategyName: "momentum",
		Symbol:       "AAPL",
		Action:       strategy.ActionBuy,
		Confidence:   0.8,
		TS:           time.Now().UTC(),
	}
}

func TestHandleSignal_ShadowModeSuppressesProposal(t *testing.T) {
	state := &fakeStateSource{safe: safeState(), shadowed: true}
	a, intents, proposals := newTestAgent(t, state)

	a.handleSignal(context.Background(), buySignal())

	if len(proposals) != 0 {
		t.Fatalf("proposals = %d, want none while the shadow flag is set", len(proposals))
	}
	// The intent is still computed and logged; only sizing is withheld.
	if !strings.Contains(intents.String(), "AAPL") {
		t.Error("intent not emitted while shadowed")
	}
}

func TestHandleSignal_ShadowClearedProposalsResume(t *testing.T) {
	state := &fakeStateSource{safe: safeState()}
	a, _, proposals := newTestAgent(t, state)

	a.handleSignal(context.Background(), buySignal())

	select {
	case p := <-proposals:
		if p.Symbol != "AAPL" || p.Quantity != 2 {
			t.Errorf("proposal = %+v", p)
		}
	default:
		t.Fatal("expected a proposal once the shadow flag is clear")
	}
}

func TestHandleSignal_ShadowReadErrorFailsClosed(t *testing.T) {
	state := &fakeStateSource{safe: safeState(), shadowErr: errors.New("redis down")}
	a, _, proposals := newTestAgent(t, state)

	a.handleSignal(context.Background(), buySignal())

	if len(proposals) != 0 {
		t.Error("proposal published despite an unreadable shadow flag")
	}
}

func TestHandleSignal_UnsafeStateSkips(t *testing.T) {
	state := &fakeStateSource{safe: model.SafetyState{TradingEnabled: false}}
	a, intents, proposals := newTestAgent(t, state)

	a.handleSignal(context.Background(), buySignal())

	if len(proposals) != 0 {
		t.Error("proposal published while halted")
	}
	if intents.Len() != 0 {
		t.Error("intent emitted while halted")
	}
}
