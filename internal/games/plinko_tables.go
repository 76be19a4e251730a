package games

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed plinko_tables.json
var plinkoTablesJSON []byte

var plinkoPayoutTables = loadPlinkoTables()

func loadPlinkoTables() map[string][]float64 {
	raw := map[string][]float64{}
	if err := json.Unmarshal(plinkoTablesJSON, &raw); err != nil {
		panic(fmt.Sprintf("failed to parse plinko payout tables: %v", err))
	}

	for risk, multipliers := range raw {
		if len(multipliers) != PlinkoRows+1 {
			panic(fmt.Sprintf("plinko table mismatch for risk %q: expected %d entries, got %d", risk, PlinkoRows+1, len(multipliers)))
		}
	}

	return raw
}

func plinkoTable(risk string) ([]float64, error) {
	table, ok := plinkoPayoutTables[risk]
	if !ok {
		return nil, fmt.Errorf("no plinko payout table for risk %q", risk)
	}
	return table, nil
}
