package node

import (
	"time"

	"github.com/goodnatureofminers/blackbook/internal/chain"
	"github.com/goodnatureofminers/blackbook/internal/market"
	"github.com/goodnatureofminers/blackbook/internal/model"
)

// Config holds the node parameters.
type Config struct {
	Chain  chain.Params
	Market market.Config
	// Genesis lists the allocations minted by block 0.
	Genesis []model.Output
	// GenesisTime stamps block 0. Zero means the node clock at startup.
	GenesisTime time.Time
	// Treasury sponsors markets created without an explicit sponsor.
	Treasury     model.Address
	MempoolLimit int
}

// DefaultConfig returns the node defaults.
func DefaultConfig() Config {
	return Config{
		Chain:        chain.DefaultParams(),
		Market:       market.DefaultConfig(),
		Genesis:      DefaultGenesis(),
		Treasury:     treasuryAddress,
		MempoolLimit: mempoolLimit,
	}
}

// DefaultGenesis funds the demo accounts and gives the treasury the rest of
// the fixed supply.
func DefaultGenesis() []model.Output {
	outs := make([]model.Output, 0, len(demoAccounts)+1)
	var allocated model.Amount
	for _, addr := range demoAccounts {
		outs = append(outs, model.Output{Address: addr, Value: demoBalance})
		allocated += demoBalance
	}
	return append(outs, model.Output{Address: treasuryAddress, Value: genesisSupply - allocated})
}
