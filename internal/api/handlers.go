package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fairhouse/engine/internal/engine"
	"github.com/fairhouse/engine/internal/games"
	"github.com/fairhouse/engine/internal/round"
)

// validationErrors are surfaced verbatim with a 400 status; the caller must
// correct the input. Everything else unrecognized is a 500.
var validationErrors = []error{
	round.ErrInvalidBet,
	round.ErrInvalidParams,
	round.ErrInsufficientBalance,
	round.ErrGameNotFound,
	round.ErrGameDisabled,
	round.ErrSessionNotFound,
	round.ErrAlreadySettled,
	round.ErrTileOutOfRange,
	round.ErrTileAlreadyRevealed,
	round.ErrNoTilesRevealed,
	round.ErrSessionConflict,
}

func (s *Server) writeRoundError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, round.ErrRateLimited) {
		s.writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: err.Error()})
		return
	}
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	s.logger.Error("round failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "storage failure"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, s *Server, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func (s *Server) handleDice(w http.ResponseWriter, r *http.Request) {
	var req DiceRequest
	if !decodeBody(w, r, s, &req) {
		return
	}

	out, err := s.controller.PlayDice(r.Context(), round.DiceRequest{
		UserID:     userIDFrom(r.Context()),
		BetAmount:  req.BetAmount,
		Target:     req.Target,
		RollUnder:  req.RollUnder,
		ClientSeed: req.ClientSeed,
	})
	if err != nil {
		s.writeRoundError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, DiceResponse{
		GameSessionID:  out.SessionID,
		Roll:           out.Roll,
		Win:            out.Win,
		Multiplier:     out.Multiplier,
		Payout:         out.Payout,
		Balance:        out.Balance,
		ServerSeed:     out.ServerSeed,
		ServerSeedHash: out.ServerSeedHash,
		ClientSeed:     out.ClientSeed,
		Nonce:          out.Nonce,
	})
}

func (s *Server) handleCrash(w http.ResponseWriter, r *http.Request) {
	var req CrashRequest
	if !decodeBody(w, r, s, &req) {
		return
	}

	out, err := s.controller.PlayCrash(r.Context(), round.CrashRequest{
		UserID:      userIDFrom(r.Context()),
		BetAmount:   req.BetAmount,
		AutoCashOut: req.AutoCashOut,
		ClientSeed:  req.ClientSeed,
	})
	if err != nil {
		s.writeRoundError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, CrashResponse{
		GameSessionID:  out.SessionID,
		CrashPoint:     out.CrashPoint,
		CashOutAt:      out.CashOutAt,
		Win:            out.Win,
		Multiplier:     out.Multiplier,
		Payout:         out.Payout,
		Balance:        out.Balance,
		ServerSeed:     out.ServerSeed,
		ServerSeedHash: out.ServerSeedHash,
		ClientSeed:     out.ClientSeed,
		Nonce:          out.Nonce,
	})
}

func (s *Server) handleMines(w http.ResponseWriter, r *http.Request) {
	var req MinesRequest
	if !decodeBody(w, r, s, &req) {
		return
	}
	userID := userIDFrom(r.Context())

	switch req.Action {
	case "start":
		out, err := s.controller.StartMines(r.Context(), round.MinesStartRequest{
			UserID:     userID,
			BetAmount:  req.BetAmount,
			MineCount:  req.MineCount,
			ClientSeed: req.ClientSeed,
		})
		if err != nil {
			s.writeRoundError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, MinesStartResponse{
			GameSessionID:  out.SessionID,
			MineCount:      out.MineCount,
			Balance:        out.Balance,
			NextMultiplier: out.NextMultiplier,
			ServerSeedHash: out.ServerSeedHash,
			ClientSeed:     out.ClientSeed,
			Nonce:          out.Nonce,
		})

	case "reveal":
		if req.TileIndex == nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "tileIndex is required"})
			return
		}
		out, err := s.controller.RevealMines(r.Context(), round.MinesRevealRequest{
			UserID:    userID,
			SessionID: req.GameSessionID,
			TileIndex: *req.TileIndex,
		})
		if err != nil {
			s.writeRoundError(w, r, err)
			return
		}
		resp := MinesRevealResponse{
			HitMine:       out.HitMine,
			RevealedTiles: out.RevealedTiles,
			Payout:        out.Payout,
			Balance:       out.Balance,
		}
		if out.HitMine {
			resp.MinePositions = out.MinePositions
			resp.ServerSeed = out.ServerSeed
		} else {
			resp.CurrentMultiplier = &out.CurrentMultiplier
			resp.NextMultiplier = out.NextMultiplier
			resp.PotentialPayout = &out.PotentialPayout
		}
		s.writeJSON(w, http.StatusOK, resp)

	case "cashout":
		out, err := s.controller.CashoutMines(r.Context(), round.MinesCashoutRequest{
			UserID:    userID,
			SessionID: req.GameSessionID,
		})
		if err != nil {
			s.writeRoundError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, MinesCashoutResponse{
			Multiplier: out.Multiplier,
			Payout:     out.Payout,
			Balance:    out.Balance,
			ServerSeed: out.ServerSeed,
		})

	default:
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "action must be start, reveal or cashout"})
	}
}

func (s *Server) handlePlinko(w http.ResponseWriter, r *http.Request) {
	var req PlinkoRequest
	if !decodeBody(w, r, s, &req) {
		return
	}

	out, err := s.controller.PlayPlinko(r.Context(), round.PlinkoRequest{
		UserID:     userIDFrom(r.Context()),
		BetAmount:  req.BetAmount,
		Rows:       req.Rows,
		Risk:       req.Risk,
		ClientSeed: req.ClientSeed,
	})
	if err != nil {
		s.writeRoundError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, PlinkoResponse{
		GameSessionID:  out.SessionID,
		Path:           out.Path,
		Bucket:         out.Bucket,
		Multiplier:     out.Multiplier,
		Payout:         out.Payout,
		Balance:        out.Balance,
		ServerSeed:     out.ServerSeed,
		ServerSeedHash: out.ServerSeedHash,
		ClientSeed:     out.ClientSeed,
		Nonce:          out.Nonce,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.controller.GetSession(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeRoundError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

// handleVerify recomputes a round outcome from a revealed seed triple. It is
// public and pure: anyone holding the revealed seeds can audit a settled
// round without an account.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeBody(w, r, s, &req) {
		return
	}
	if req.ServerSeed == "" {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "serverSeed is required"})
		return
	}

	houseEdge := 0.0
	if req.HouseEdge != nil {
		houseEdge = *req.HouseEdge
	} else if cfg, err := s.db.GetGameConfig(r.Context(), req.Game); err == nil {
		houseEdge = cfg.HouseEdge
	}

	var outcome any
	switch req.Game {
	case round.GameDice:
		game := games.Dice{Target: req.Target, RollUnder: req.RollUnder}
		if err := game.Validate(); err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		outcome = game.Play(req.ServerSeed, req.ClientSeed, req.Nonce, houseEdge)

	case round.GameCrash:
		game := games.Crash{AutoCashOut: req.AutoCashOut}
		if err := game.Validate(); err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		outcome = game.Play(req.ServerSeed, req.ClientSeed, req.Nonce, houseEdge)

	case round.GameMines:
		if err := games.ValidateMineCount(req.MineCount); err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		outcome = map[string]any{
			"minePositions": games.PlaceMines(req.ServerSeed, req.ClientSeed, req.Nonce, req.MineCount),
			"mineCount":     req.MineCount,
		}

	case round.GamePlinko:
		game := games.Plinko{Rows: req.Rows, Risk: req.Risk}
		if err := game.Validate(); err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		result, err := game.Play(req.ServerSeed, req.ClientSeed, req.Nonce, houseEdge)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		outcome = result

	default:
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown game"})
		return
	}

	s.writeJSON(w, http.StatusOK, VerifyResponse{
		Game:           req.Game,
		ServerSeedHash: engine.HashServerSeed(req.ServerSeed),
		Nonce:          req.Nonce,
		Outcome:        outcome,
		EngineVersion:  EngineVersion,
	})
}
