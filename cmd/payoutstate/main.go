package main

import (
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	flag "github.com/spf13/pflag"

	"github.com/smartcontractkit/automation-prize-payout/pkg/payout"
	"github.com/smartcontractkit/automation-prize-payout/pkg/store"
)

var (
	dbPath = flag.StringP("db", "d", "./payout-state", "path to the payout leveldb database")
	style  = flag.StringP("style", "s", "light", "table style: light, rounded or plain")
)

// payoutstate prints the persisted payout state. The daemon must be
// stopped since LevelDB allows a single process per database.
func main() {
	flag.Parse()

	procLog := log.New(log.Writer(), "[payoutstate] ", log.LstdFlags)

	db, err := store.OpenLevelDB(*dbPath)
	if err != nil {
		procLog.Printf("failed to open state: %s", err)
		os.Exit(1)
	}
	defer db.Close()

	state, ok, err := db.Load()
	if err != nil {
		procLog.Printf("failed to read state: %s", err)
		os.Exit(1)
	}

	if !ok {
		procLog.Printf("no payout state stored at %s", *dbPath)
		os.Exit(1)
	}

	render(state)
}

func render(state payout.PayoutState) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)

	switch *style {
	case "rounded":
		t.SetStyle(table.StyleRounded)
	case "plain":
		t.SetStyle(table.StyleDefault)
	default:
		t.SetStyle(table.StyleLight)
	}

	t.SetTitle("prize payout state")
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"owner", state.Owner.Hex()},
		{"authorized trigger", state.AuthorizedTrigger.Hex()},
		{"winner", state.Winner.Hex()},
		{"prize (USD)", payout.FormatUSD(state.PrizeUSD)},
		{"balance (native)", payout.FormatNative(state.Balance)},
		{"balance (wei)", state.Balance.String()},
		{"last trigger", state.LastTriggerTime.Format(time.RFC3339)},
		{"paused", state.Paused},
	})

	t.Render()
}
