package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lox/durak/internal/jackpot"
	"github.com/lox/durak/internal/room"
	"github.com/lox/durak/internal/store"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/rooms", s.handleListRooms)
		r.Get("/rooms/{roomID}", s.handleGetRoom)
		r.Get("/jackpot", s.handleJackpot)
		r.Get("/jackpot/rounds/{roundID}", s.handleGetRound)
		r.Get("/jackpot/rounds/{roundID}/verify", s.handleVerifyRound)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, RoomListData{Rooms: s.rooms.Rooms()})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := s.rooms.Snapshot(chi.URLParam(r, "roomID"), "")
	if errors.Is(err, room.ErrRoomNotFound) {
		s.writeError(w, http.StatusNotFound, "room_not_found", err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "room_error", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleJackpot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.jackpot.Snapshot())
}

func (s *Server) lookupRound(w http.ResponseWriter, r *http.Request) (store.RoundRecord, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roundID"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid_round", "round id must be a positive integer")
		return store.RoundRecord{}, false
	}
	rec, ok := s.jackpot.Round(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "round_not_found", fmt.Sprintf("round %d is not available", id))
		return store.RoundRecord{}, false
	}
	return rec, true
}

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRound(w, r)
	if !ok {
		return
	}
	if rec.State != store.RoundResolved {
		rec.ServerSeed = ""
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleVerifyRound(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupRound(w, r)
	if !ok {
		return
	}
	if rec.State != store.RoundResolved || rec.ServerSeed == "" {
		s.writeError(w, http.StatusConflict, "round_unresolved", "the seed is revealed once the round has a result")
		return
	}
	v, err := jackpot.Verify(rec.ServerSeed, rec.ServerSeedHash, rec.ID, rec.BankRed, rec.BankBlack)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "verification_failed", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		jackpot.Verification
		ServerSeed string `json:"server_seed"`
		Recorded   string `json:"recorded_winner"`
		Match      bool   `json:"match"`
	}{v, rec.ServerSeed, rec.Winner, rec.Winner == string(v.Winner)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorData{Code: code, Message: message})
}
