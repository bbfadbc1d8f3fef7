// Package execution simulates fills for approved order proposals in
// paper mode. No broker is ever called; simulated fills land in the
// fills journal, which closes the loop for the P&L ledger and the
// daily-loss breaker.
package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/ledger"
	"tradecore/internal/model"
)

// PriceSource supplies the current mark for a symbol. ok is false
// when no recent price is known, in which case the proposal is
// rejected rather than filled at a stale mark.
type PriceSource interface {
	LastPrice(symbol string) (float64, bool)
}

// FillSink journals simulated fills. *sqlite.Store satisfies it.
type FillSink interface {
	InsertFill(ctx context.Context, f ledger.Fill) error
}

// Account identifies whose ledger the simulated fills belong to.
type Account struct {
	TenantID   string
	UID        string
	StrategyID string
	RunID      string
}

// Config tunes the simulation.
type Config struct {
	SlippageBps int64           // simulated slippage in basis points
	FeePerShare decimal.Decimal // flat per-share fee
}

// Result reports the outcome of one proposal.
type Result struct {
	ProposalID string `json:"proposal_id"`
	Status     string `json:"status"` // FILLED, REJECTED
	Message    string `json:"message"`
	FillID     string `json:"fill_id,omitempty"`
}

// PaperTrader consumes order proposals and journals simulated fills.
type PaperTrader struct {
	cfg     Config
	acct    Account
	prices  PriceSource
	sink    FillSink
	results chan Result

	mu  sync.Mutex
	seq int64

	now func() time.Time

	// OnFill is an optional hook for metrics.
	OnFill func(ledger.Fill)
}

// New creates a paper trader.
func New(cfg Config, acct Account, prices PriceSource, sink FillSink) *PaperTrader {
	return &PaperTrader{
		cfg:     cfg,
		acct:    acct,
		prices:  prices,
		sink:    sink,
		results: make(chan Result, 64),
		now:     time.Now,
	}
}

// Results returns the channel of execution results.
func (p *PaperTrader) Results() <-chan Result {
	return p.results
}

// Run consumes proposals until ctx is cancelled or the channel closes.
func (p *PaperTrader) Run(ctx context.Context, proposalCh <-chan model.OrderProposal) {
	for {
		select {
		case <-ctx.Done():
			return
		case prop, ok := <-proposalCh:
			if !ok {
				return
			}
			p.execute(ctx, prop)
		}
	}
}

func (p *PaperTrader) execute(ctx context.Context, prop model.OrderProposal) {
	res := p.simulate(ctx, prop)
	select {
	case p.results <- res:
	default:
		log.Printf("[paper] result channel full, dropping result for %s", prop.ProposalID)
	}
}

func (p *PaperTrader) simulate(ctx context.Context, prop model.OrderProposal) Result {
	if prop.Side != model.SideBuy && prop.Side != model.SideSell {
		return Result{ProposalID: prop.ProposalID, Status: "REJECTED", Message: "unsupported side " + string(prop.Side)}
	}
	if prop.Quantity <= 0 {
		return Result{ProposalID: prop.ProposalID, Status: "REJECTED", Message: "non-positive quantity"}
	}

	mark, ok := p.prices.LastPrice(prop.Symbol)
	if !ok || mark <= 0 {
		return Result{ProposalID: prop.ProposalID, Status: "REJECTED", Message: "no mark price for " + prop.Symbol}
	}

	price := ledger.DecimalFromFloat(mark)
	slip := decimal.Zero
	if p.cfg.SlippageBps > 0 {
		slip = price.Mul(decimal.New(p.cfg.SlippageBps, -4))
		if prop.Side == model.SideBuy {
			price = price.Add(slip) // buys fill worse
		} else {
			price = price.Sub(slip)
		}
	}

	qty := decimal.NewFromInt(prop.Quantity)
	side := ledger.Buy
	if prop.Side == model.SideSell {
		side = ledger.Sell
	}

	p.mu.Lock()
	p.seq++
	fillID := fmt.Sprintf("PAPER-%d", p.seq)
	p.mu.Unlock()

	fill := ledger.Fill{
		TenantID:     p.acct.TenantID,
		UID:          p.acct.UID,
		StrategyID:   p.acct.StrategyID,
		RunID:        p.acct.RunID,
		Symbol:       prop.Symbol,
		Side:         side,
		Qty:          qty,
		Price:        price,
		Fees:         p.cfg.FeePerShare.Mul(qty),
		Slippage:     slip.Mul(qty),
		TS:           p.now().UTC(),
		OrderID:      prop.ProposalID,
		BrokerFillID: fillID,
	}

	if err := p.sink.InsertFill(ctx, fill); err != nil {
		log.Printf("[paper] journal fill %s failed: %v", fillID, err)
		return Result{ProposalID: prop.ProposalID, Status: "REJECTED", Message: "journal: " + err.Error()}
	}

	log.Printf("[paper] %s %s qty=%d price=%s (slip=%s) fill=%s",
		prop.Side, prop.Symbol, prop.Quantity, price.StringFixed(4), slip.StringFixed(4), fillID)

	if p.OnFill != nil {
		p.OnFill(fill)
	}
	return Result{ProposalID: prop.ProposalID, Status: "FILLED", Message: "paper filled at " + price.StringFixed(4), FillID: fillID}
}
