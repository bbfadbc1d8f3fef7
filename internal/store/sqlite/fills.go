package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/ledger"
	"tradecore/internal/model"
)

// Fixed-width timestamp layout: unlike RFC3339Nano it never trims
// trailing zeros, so string comparison in SQL matches time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// InsertFill journals a validated broker fill. Decimal fields are
// stored as their exact string forms so reads reconstruct the same
// values bit for bit.
func (s *Store) InsertFill(ctx context.Context, f ledger.Fill) error {
	if err := f.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fills (tenant_id, uid, strategy_id, run_id, symbol, side,
			qty, price, fees, slippage, ts_utc, order_id, broker_fill_id, contract_multiplier)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		f.TenantID, f.UID, f.StrategyID, f.RunID, f.Symbol, string(f.Side),
		f.Qty.String(), f.Price.String(), f.Fees.String(), f.Slippage.String(),
		f.TS.UTC().Format(tsLayout), f.OrderID, f.BrokerFillID, f.ContractMultiplier,
	)
	if err != nil {
		return fmt.Errorf("sqlite insert fill: %w", err)
	}
	return nil
}

// FillsSince returns all fills with ts >= since, oldest first. It
// satisfies the risk engine's fill source.
func (s *Store) FillsSince(ctx context.Context, since time.Time) ([]ledger.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, uid, strategy_id, run_id, symbol, side,
			qty, price, fees, slippage, ts_utc, order_id, broker_fill_id, contract_multiplier
		FROM fills
		WHERE ts_utc >= ?
		ORDER BY ts_utc ASC, id ASC
	`, since.UTC().Format(tsLayout))
	if err != nil {
		return nil, fmt.Errorf("sqlite query fills: %w", err)
	}
	defer rows.Close()

	var fills []ledger.Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

func scanFill(rows *sql.Rows) (ledger.Fill, error) {
	var (
		f                        ledger.Fill
		side, qty, price         string
		fees, slippage, ts       string
		runID, orderID, brokerID sql.NullString
	)
	err := rows.Scan(&f.TenantID, &f.UID, &f.StrategyID, &runID, &f.Symbol, &side,
		&qty, &price, &fees, &slippage, &ts, &orderID, &brokerID, &f.ContractMultiplier)
	if err != nil {
		return f, fmt.Errorf("sqlite scan fill: %w", err)
	}
	f.RunID = runID.String
	f.OrderID = orderID.String
	f.BrokerFillID = brokerID.String
	f.Side = ledger.Side(side)

	for _, p := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&f.Qty, qty}, {&f.Price, price}, {&f.Fees, fees}, {&f.Slippage, slippage},
	} {
		d, err := decimal.NewFromString(p.src)
		if err != nil {
			return f, fmt.Errorf("sqlite decode decimal %q: %w", p.src, err)
		}
		*p.dst = d
	}

	f.TS, err = time.Parse(tsLayout, ts)
	if err != nil {
		return f, fmt.Errorf("sqlite decode ts %q: %w", ts, err)
	}
	return f, nil
}

// RecordEvent journals a circuit breaker event. It satisfies the risk
// engine's event sink.
func (s *Store) RecordEvent(ctx context.Context, ev model.CircuitBreakerEvent) error {
	var meta []byte
	if ev.Metadata != nil {
		meta, _ = json.Marshal(ev.Metadata)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO breaker_events (breaker_type, ts_utc, user_id, tenant_id, strategy_id, severity, message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(ev.BreakerType), ev.TS.UTC().Format(tsLayout),
		ev.UserID, ev.TenantID, ev.StrategyID, string(ev.Severity), ev.Message, string(meta),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert breaker event: %w", err)
	}
	return nil
}

// EventsSince returns breaker events with ts >= since, oldest first.
func (s *Store) EventsSince(ctx context.Context, since time.Time) ([]model.CircuitBreakerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT breaker_type, ts_utc, user_id, tenant_id, strategy_id, severity, message, metadata
		FROM breaker_events
		WHERE ts_utc >= ?
		ORDER BY ts_utc ASC, id ASC
	`, since.UTC().Format(tsLayout))
	if err != nil {
		return nil, fmt.Errorf("sqlite query breaker events: %w", err)
	}
	defer rows.Close()

	var events []model.CircuitBreakerEvent
	for rows.Next() {
		var (
			ev          model.CircuitBreakerEvent
			bt, sev, ts string
			strategyID  sql.NullString
			meta        sql.NullString
		)
		if err := rows.Scan(&bt, &ts, &ev.UserID, &ev.TenantID, &strategyID, &sev, &ev.Message, &meta); err != nil {
			return nil, fmt.Errorf("sqlite scan breaker event: %w", err)
		}
		ev.BreakerType = model.BreakerType(bt)
		ev.Severity = model.Severity(sev)
		ev.StrategyID = strategyID.String
		if ev.TS, err = time.Parse(tsLayout, ts); err != nil {
			return nil, fmt.Errorf("sqlite decode event ts %q: %w", ts, err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("sqlite decode event metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
