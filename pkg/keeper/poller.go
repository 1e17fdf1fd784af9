package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartcontractkit/automation-prize-payout/pkg/payout"
	"github.com/smartcontractkit/automation-prize-payout/pkg/prommetrics"
	"github.com/smartcontractkit/automation-prize-payout/pkg/telemetry"
	"github.com/smartcontractkit/automation-prize-payout/pkg/tickers"
)

// upkeepKey identifies the single upkeep in audit records.
const upkeepKey = "prize-payout"

// Upkeep is the check-then-perform surface the poller drives.
type Upkeep interface {
	IsDue(time.Time) (bool, error)
	RunUpkeep(context.Context, common.Address, time.Time) (payout.UpkeepResult, error)
}

// Poller is the external polling agent. On every tick it asks the upkeep
// whether it is due and, if so, triggers it as the authorized identity. A
// failed trigger is not retried; the next tick tries again.
type Poller struct {
	upkeep   Upkeep
	identity common.Address
	log      *telemetry.Logger
}

func NewPoller(upkeep Upkeep, identity common.Address, logger *telemetry.Logger) *Poller {
	return &Poller{
		upkeep:   upkeep,
		identity: identity,
		log:      telemetry.WrapTelemetryLogger(logger, "keeper"),
	}
}

// Process implements the ticker observer.
func (p *Poller) Process(ctx context.Context, tick tickers.Tick) error {
	now := tick.Time()

	prommetrics.UpkeepChecks.Inc()

	due, err := p.upkeep.IsDue(now)
	if err != nil {
		if errors.Is(err, payout.ErrNoFunds) {
			p.collect(now, telemetry.NoFunds, "")
			p.log.Printf("treasury is empty; skipping check at %s", now.Format(time.RFC3339))

			return nil
		}

		p.collect(now, telemetry.Failed, err.Error())

		return fmt.Errorf("due check failed: %w", err)
	}

	if !due {
		p.collect(now, telemetry.NotDue, "")
		return nil
	}

	p.collect(now, telemetry.Checked, "")

	result, err := p.upkeep.RunUpkeep(ctx, p.identity, now)
	if err != nil {
		p.collect(now, telemetry.Failed, err.Error())

		return fmt.Errorf("run upkeep failed: %w", err)
	}

	if !result.Performed {
		p.collect(now, telemetry.NoOp, fmt.Sprintf("elapsed %s", result.Elapsed))
		p.log.Printf("upkeep accepted as no-op; %s since last trigger", result.Elapsed)

		return nil
	}

	p.collect(now, telemetry.Performed, result.Event.ID.String())
	p.log.Printf("payout %s performed: %s wei to %s", result.Event.ID, result.Amount, result.Event.Winner)

	return nil
}

func (p *Poller) collect(at time.Time, status telemetry.Status, detail string) {
	if err := p.log.Collect(upkeepKey, at, status, detail); err != nil {
		p.log.Printf("failed to write audit record: %s", err)
	}
}
