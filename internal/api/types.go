package api

import (
	"github.com/shopspring/decimal"
)

// ErrorResponse is the uniform error envelope on every endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// DiceRequest is the dice action payload.
type DiceRequest struct {
	BetAmount  decimal.Decimal `json:"betAmount"`
	Target     int             `json:"target"`
	RollUnder  bool            `json:"rollUnder"`
	ClientSeed string          `json:"clientSeed"`
}

// DiceResponse is the settled dice round.
type DiceResponse struct {
	GameSessionID  string          `json:"gameSessionId"`
	Roll           int             `json:"roll"`
	Win            bool            `json:"win"`
	Multiplier     float64         `json:"multiplier"`
	Payout         decimal.Decimal `json:"payout"`
	Balance        decimal.Decimal `json:"balance"`
	ServerSeed     string          `json:"serverSeed"`
	ServerSeedHash string          `json:"serverSeedHash"`
	ClientSeed     string          `json:"clientSeed"`
	Nonce          uint64          `json:"nonce"`
}

// CrashRequest is the crash action payload. AutoCashOut omitted or zero
// settles the round as a single-shot simulation.
type CrashRequest struct {
	BetAmount   decimal.Decimal `json:"betAmount"`
	AutoCashOut float64         `json:"autoCashOut,omitempty"`
	ClientSeed  string          `json:"clientSeed"`
}

// CrashResponse is the settled crash round.
type CrashResponse struct {
	GameSessionID  string          `json:"gameSessionId"`
	CrashPoint     float64         `json:"crashPoint"`
	CashOutAt      float64         `json:"cashOutAt"`
	Win            bool            `json:"win"`
	Multiplier     float64         `json:"multiplier"`
	Payout         decimal.Decimal `json:"payout"`
	Balance        decimal.Decimal `json:"balance"`
	ServerSeed     string          `json:"serverSeed"`
	ServerSeedHash string          `json:"serverSeedHash"`
	ClientSeed     string          `json:"clientSeed"`
	Nonce          uint64          `json:"nonce"`
}

// MinesRequest multiplexes the three mines actions on one endpoint.
type MinesRequest struct {
	Action        string          `json:"action"`
	BetAmount     decimal.Decimal `json:"betAmount,omitempty"`
	MineCount     int             `json:"mineCount,omitempty"`
	GameSessionID string          `json:"gameSessionId,omitempty"`
	TileIndex     *int            `json:"tileIndex,omitempty"`
	ClientSeed    string          `json:"clientSeed,omitempty"`
}

// MinesStartResponse reports the opened session.
type MinesStartResponse struct {
	GameSessionID  string          `json:"gameSessionId"`
	MineCount      int             `json:"mineCount"`
	Balance        decimal.Decimal `json:"balance"`
	NextMultiplier float64         `json:"nextMultiplier"`
	ServerSeedHash string          `json:"serverSeedHash"`
	ClientSeed     string          `json:"clientSeed"`
	Nonce          uint64          `json:"nonce"`
}

// MinesRevealResponse reports one reveal. Mine positions and the server seed
// appear only on a bust.
type MinesRevealResponse struct {
	HitMine           bool             `json:"hitMine"`
	RevealedTiles     []int            `json:"revealedTiles"`
	MinePositions     []int            `json:"minePositions,omitempty"`
	CurrentMultiplier *float64         `json:"currentMultiplier,omitempty"`
	NextMultiplier    *float64         `json:"nextMultiplier,omitempty"`
	PotentialPayout   *decimal.Decimal `json:"potentialPayout,omitempty"`
	Payout            decimal.Decimal  `json:"payout"`
	Balance           decimal.Decimal  `json:"balance"`
	ServerSeed        string           `json:"serverSeed,omitempty"`
}

// MinesCashoutResponse is the settled session.
type MinesCashoutResponse struct {
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	Balance    decimal.Decimal `json:"balance"`
	ServerSeed string          `json:"serverSeed"`
}

// PlinkoRequest is the plinko action payload.
type PlinkoRequest struct {
	BetAmount  decimal.Decimal `json:"betAmount"`
	Rows       int             `json:"rows"`
	Risk       string          `json:"risk"`
	ClientSeed string          `json:"clientSeed"`
}

// PlinkoResponse is the settled plinko round.
type PlinkoResponse struct {
	GameSessionID  string          `json:"gameSessionId"`
	Path           []int           `json:"path"`
	Bucket         int             `json:"bucket"`
	Multiplier     float64         `json:"multiplier"`
	Payout         decimal.Decimal `json:"payout"`
	Balance        decimal.Decimal `json:"balance"`
	ServerSeed     string          `json:"serverSeed"`
	ServerSeedHash string          `json:"serverSeedHash"`
	ClientSeed     string          `json:"clientSeed"`
	Nonce          uint64          `json:"nonce"`
}

// VerifyRequest recomputes an outcome from a revealed seed triple. HouseEdge
// defaults to the game's configured edge when omitted.
type VerifyRequest struct {
	Game       string   `json:"game"`
	ServerSeed string   `json:"serverSeed"`
	ClientSeed string   `json:"clientSeed"`
	Nonce      uint64   `json:"nonce"`
	HouseEdge  *float64 `json:"houseEdge,omitempty"`

	// Game parameters.
	Target      int     `json:"target,omitempty"`
	RollUnder   bool    `json:"rollUnder,omitempty"`
	AutoCashOut float64 `json:"autoCashOut,omitempty"`
	MineCount   int     `json:"mineCount,omitempty"`
	Rows        int     `json:"rows,omitempty"`
	Risk        string  `json:"risk,omitempty"`
}

// VerifyResponse carries the recomputed, game-specific outcome.
type VerifyResponse struct {
	Game           string `json:"game"`
	ServerSeedHash string `json:"serverSeedHash"`
	Nonce          uint64 `json:"nonce"`
	Outcome        any    `json:"outcome"`
	EngineVersion  string `json:"engineVersion"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status        string `json:"status"`
	EngineVersion string `json:"engineVersion"`
	Timestamp     string `json:"timestamp"`
}
