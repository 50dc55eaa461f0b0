package node

import "github.com/goodnatureofminers/blackbook/internal/model"

const (
	genesisSupply model.Amount = 21_000 * model.SatoshiPerCoin
	demoBalance   model.Amount = 1_000 * model.SatoshiPerCoin

	treasuryAddress model.Address = "treasury"

	mempoolLimit = 10_000

	blockVersion int32 = 1
)

var demoAccounts = []model.Address{
	"alice", "bob", "charlie", "diana", "eve", "frank", "grace", "hannah",
}
