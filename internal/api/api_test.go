package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fairhouse/engine/internal/engine"
	"github.com/fairhouse/engine/internal/round"
	"github.com/fairhouse/engine/internal/store"
)

var testSecret = []byte("api-test-secret")

func newTestServer(t *testing.T, opts round.Options) (*httptest.Server, *store.SQLiteDB) {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	controller := round.NewController(db, zap.NewNop(), opts)
	srv := NewServer(controller, db, zap.NewNop(), testSecret)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, db
}

func mintToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func fund(t *testing.T, db *store.SQLiteDB, userID, amount string) {
	t.Helper()
	if err := db.SetBalance(context.Background(), userID, decimal.RequireFromString(amount)); err != nil {
		t.Fatalf("fund %s: %v", userID, err)
	}
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func decodeErrorEnvelope(t *testing.T, raw []byte) ErrorResponse {
	t.Helper()
	var envelope ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, raw)
	}
	if envelope.Success {
		t.Errorf("error envelope has success=true: %s", raw)
	}
	if envelope.Error == "" {
		t.Errorf("error envelope has empty error: %s", raw)
	}
	return envelope
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, round.Options{RateMax: 1000})

	status, raw := doJSON(t, ts, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("health status = %d, want 200", status)
	}
	var resp HealthResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("health status = %q, want ok", resp.Status)
	}
	if resp.EngineVersion != EngineVersion {
		t.Errorf("engineVersion = %q, want %q", resp.EngineVersion, EngineVersion)
	}
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t, round.Options{RateMax: 1000})

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbage token", "not-a-jwt"},
		{"wrong secret", func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"})
			signed, _ := tok.SignedString([]byte("some-other-secret"))
			return signed
		}()},
		{"no subject", func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{})
			signed, _ := tok.SignedString(testSecret)
			return signed
		}()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/dice", tc.token, DiceRequest{
				BetAmount: decimal.NewFromInt(1), Target: 50, RollUnder: true,
			})
			if status != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", status)
			}
			decodeErrorEnvelope(t, raw)
		})
	}
}

func TestDiceEndpoint(t *testing.T) {
	ts, db := newTestServer(t, round.Options{RateMax: 1000})
	fund(t, db, "alice", "100")
	token := mintToken(t, "alice")

	status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/dice", token, DiceRequest{
		BetAmount:  decimal.NewFromInt(10),
		Target:     50,
		RollUnder:  true,
		ClientSeed: "lucky",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", status, raw)
	}
	var resp DiceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode dice response: %v", err)
	}

	if resp.GameSessionID == "" {
		t.Error("gameSessionId is empty")
	}
	if resp.Roll < 1 || resp.Roll > 100 {
		t.Errorf("roll = %d, want 1..100", resp.Roll)
	}
	if resp.Nonce != 1 {
		t.Errorf("nonce = %d, want 1", resp.Nonce)
	}
	if resp.ClientSeed != "lucky" {
		t.Errorf("clientSeed = %q, want lucky", resp.ClientSeed)
	}
	if got := engine.HashServerSeed(resp.ServerSeed); got != resp.ServerSeedHash {
		t.Errorf("serverSeedHash = %q, recomputed %q", resp.ServerSeedHash, got)
	}

	want := decimal.NewFromInt(90).Add(resp.Payout)
	if !resp.Balance.Equal(want) {
		t.Errorf("balance = %s, want %s", resp.Balance, want)
	}
}

func TestDiceValidation(t *testing.T) {
	ts, db := newTestServer(t, round.Options{RateMax: 1000})
	fund(t, db, "alice", "100")
	token := mintToken(t, "alice")

	tests := []struct {
		name string
		req  DiceRequest
	}{
		{"target too low", DiceRequest{BetAmount: decimal.NewFromInt(1), Target: 0, RollUnder: true}},
		{"target too high", DiceRequest{BetAmount: decimal.NewFromInt(1), Target: 100, RollUnder: true}},
		{"bet below minimum", DiceRequest{BetAmount: decimal.RequireFromString("0.01"), Target: 50, RollUnder: true}},
		{"insufficient balance", DiceRequest{BetAmount: decimal.NewFromInt(5000), Target: 50, RollUnder: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/dice", token, tc.req)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", status, raw)
			}
			decodeErrorEnvelope(t, raw)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t, round.Options{RateMax: 1000})
	token := mintToken(t, "alice")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/dice", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRateLimitStatus(t *testing.T) {
	ts, db := newTestServer(t, round.Options{RateMax: 2, RateWindow: time.Minute})
	fund(t, db, "alice", "1000")
	token := mintToken(t, "alice")

	play := DiceRequest{BetAmount: decimal.NewFromInt(1), Target: 50, RollUnder: true}
	for i := 0; i < 2; i++ {
		status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/dice", token, play)
		if status != http.StatusOK {
			t.Fatalf("round %d status = %d (%s)", i+1, status, raw)
		}
	}

	status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/dice", token, play)
	if status != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (%s)", status, raw)
	}
	decodeErrorEnvelope(t, raw)
}

func TestCrashEndpoint(t *testing.T) {
	ts, db := newTestServer(t, round.Options{RateMax: 1000})
	fund(t, db, "alice", "100")
	token := mintToken(t, "alice")

	status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/crash", token, CrashRequest{
		BetAmount:   decimal.NewFromInt(5),
		AutoCashOut: 2.0,
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", status, raw)
	}
	var resp CrashResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode crash response: %v", err)
	}
	if resp.CrashPoint < 1.0 {
		t.Errorf("crashPoint = %v, want >= 1.00", resp.CrashPoint)
	}
	if resp.Win != (resp.CrashPoint >= 2.0) {
		t.Errorf("win = %v with crashPoint %v and autoCashOut 2.0", resp.Win, resp.CrashPoint)
	}
}

func TestPlinkoEndpoint(t *testing.T) {
	ts, db := newTestServer(t, round.Options{RateMax: 1000})
	fund(t, db, "alice", "100")
	token := mintToken(t, "alice")

	status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/plinko", token, PlinkoRequest{
		BetAmount: decimal.NewFromInt(2),
		Rows:      8,
		Risk:      "medium",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", status, raw)
	}
	var resp PlinkoResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode plinko response: %v", err)
	}
	if len(resp.Path) != 8 {
		t.Errorf("path length = %d, want 8", len(resp.Path))
	}
	if resp.Bucket < 0 || resp.Bucket > 8 {
		t.Errorf("bucket = %d, want 0..8", resp.Bucket)
	}
	if resp.Payout.IsZero() {
		t.Error("plinko payout is zero; every bucket pays")
	}
}

func TestMinesFlow(t *testing.T) {
	ts, db := newTestServer(t, round.Options{RateMax: 1000})
	fund(t, db, "alice", "100")
	token := mintToken(t, "alice")

	status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/mines", token, MinesRequest{
		Action:    "start",
		BetAmount: decimal.NewFromInt(10),
		MineCount: 3,
	})
	if status != http.StatusOK {
		t.Fatalf("start status = %d (%s)", status, raw)
	}
	var started MinesStartResponse
	if err := json.Unmarshal(raw, &started); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if !started.Balance.Equal(decimal.NewFromInt(90)) {
		t.Errorf("balance after start = %s, want 90", started.Balance)
	}

	// Learn the layout from the raw record to pick a safe tile; the HTTP
	// surface must not have disclosed it.
	rec, err := db.GetSession(context.Background(), started.GameSessionID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	var state struct {
		MinePositions []int `json:"minePositions"`
	}
	if err := json.Unmarshal(rec.Outcome, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	safe := -1
	for i := 0; i < 25; i++ {
		if !slices.Contains(state.MinePositions, i) {
			safe = i
			break
		}
	}

	status, raw = doJSON(t, ts, http.MethodPost, "/api/v1/mines", token, MinesRequest{
		Action:        "reveal",
		GameSessionID: started.GameSessionID,
		TileIndex:     &safe,
	})
	if status != http.StatusOK {
		t.Fatalf("reveal status = %d (%s)", status, raw)
	}
	var revealed MinesRevealResponse
	if err := json.Unmarshal(raw, &revealed); err != nil {
		t.Fatalf("decode reveal response: %v", err)
	}
	if revealed.HitMine {
		t.Fatal("revealed a safe tile but hitMine=true")
	}
	if revealed.ServerSeed != "" {
		t.Error("server seed disclosed before settlement")
	}
	if len(revealed.MinePositions) != 0 {
		t.Error("mine positions disclosed before settlement")
	}
	if revealed.CurrentMultiplier == nil || *revealed.CurrentMultiplier <= 1.0 {
		t.Errorf("currentMultiplier = %v, want ladder value", revealed.CurrentMultiplier)
	}

	status, raw = doJSON(t, ts, http.MethodPost, "/api/v1/mines", token, MinesRequest{
		Action:        "cashout",
		GameSessionID: started.GameSessionID,
	})
	if status != http.StatusOK {
		t.Fatalf("cashout status = %d (%s)", status, raw)
	}
	var cashed MinesCashoutResponse
	if err := json.Unmarshal(raw, &cashed); err != nil {
		t.Fatalf("decode cashout response: %v", err)
	}
	if cashed.ServerSeed == "" {
		t.Error("server seed missing after settlement")
	}
	if !cashed.Balance.Equal(decimal.NewFromInt(90).Add(cashed.Payout)) {
		t.Errorf("balance = %s, want 90+%s", cashed.Balance, cashed.Payout)
	}

	// Settled sessions refuse further actions.
	status, raw = doJSON(t, ts, http.MethodPost, "/api/v1/mines", token, MinesRequest{
		Action:        "cashout",
		GameSessionID: started.GameSessionID,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("second cashout status = %d, want 400 (%s)", status, raw)
	}
	decodeErrorEnvelope(t, raw)
}

func TestMinesUnknownAction(t *testing.T) {
	ts, db := newTestServer(t, round.Options{RateMax: 1000})
	fund(t, db, "alice", "100")
	token := mintToken(t, "alice")

	status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/mines", token, MinesRequest{
		Action: "peek",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	decodeErrorEnvelope(t, raw)
}

func TestSessionEndpoint(t *testing.T) {
	ts, db := newTestServer(t, round.Options{RateMax: 1000})
	fund(t, db, "alice", "100")
	token := mintToken(t, "alice")

	status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/dice", token, DiceRequest{
		BetAmount: decimal.NewFromInt(1), Target: 50, RollUnder: true,
	})
	if status != http.StatusOK {
		t.Fatalf("play status = %d (%s)", status, raw)
	}
	var played DiceResponse
	if err := json.Unmarshal(raw, &played); err != nil {
		t.Fatal(err)
	}

	status, raw = doJSON(t, ts, http.MethodGet, "/api/v1/sessions/"+played.GameSessionID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("get session status = %d (%s)", status, raw)
	}
	var sess store.GameSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.ID != played.GameSessionID {
		t.Errorf("session id = %q, want %q", sess.ID, played.GameSessionID)
	}

	// Foreign sessions look like they do not exist.
	other := mintToken(t, "mallory")
	status, raw = doJSON(t, ts, http.MethodGet, "/api/v1/sessions/"+played.GameSessionID, other, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("foreign session status = %d, want 400 (%s)", status, raw)
	}
	decodeErrorEnvelope(t, raw)
}

func TestVerifyEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, round.Options{RateMax: 1000})

	edge := 0.02
	status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/verify", "", VerifyRequest{
		Game:       round.GameDice,
		ServerSeed: "server",
		ClientSeed: "client",
		Nonce:      1,
		HouseEdge:  &edge,
		Target:     50,
		RollUnder:  true,
	})
	if status != http.StatusOK {
		t.Fatalf("verify status = %d (%s)", status, raw)
	}
	var resp VerifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}
	if resp.ServerSeedHash != engine.HashServerSeed("server") {
		t.Errorf("serverSeedHash = %q", resp.ServerSeedHash)
	}

	// Recomputation is deterministic.
	status2, raw2 := doJSON(t, ts, http.MethodPost, "/api/v1/verify", "", VerifyRequest{
		Game:       round.GameDice,
		ServerSeed: "server",
		ClientSeed: "client",
		Nonce:      1,
		HouseEdge:  &edge,
		Target:     50,
		RollUnder:  true,
	})
	if status2 != http.StatusOK {
		t.Fatalf("second verify status = %d", status2)
	}
	if !bytes.Equal(raw, raw2) {
		t.Errorf("verify is not deterministic:\n%s\n%s", raw, raw2)
	}

	status, raw = doJSON(t, ts, http.MethodPost, "/api/v1/verify", "", VerifyRequest{
		Game:       "roulette",
		ServerSeed: "server",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("unknown game status = %d, want 400 (%s)", status, raw)
	}
	decodeErrorEnvelope(t, raw)

	status, raw = doJSON(t, ts, http.MethodPost, "/api/v1/verify", "", VerifyRequest{
		Game: round.GameDice, Target: 50, RollUnder: true,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("missing seed status = %d, want 400 (%s)", status, raw)
	}
}

func TestDisabledGameHTTP(t *testing.T) {
	ts, db := newTestServer(t, round.Options{RateMax: 1000})
	fund(t, db, "alice", "100")
	token := mintToken(t, "alice")

	if err := db.SetGameActive(context.Background(), round.GameCrash, false); err != nil {
		t.Fatalf("disable crash: %v", err)
	}

	status, raw := doJSON(t, ts, http.MethodPost, "/api/v1/crash", token, CrashRequest{
		BetAmount: decimal.NewFromInt(1),
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (%s)", status, raw)
	}
	envelope := decodeErrorEnvelope(t, raw)
	if envelope.Error == "" {
		t.Error("expected a disabled-game message")
	}
}
