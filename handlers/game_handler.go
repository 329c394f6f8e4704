package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Dosada05/track-bracket/brackets"
	"github.com/Dosada05/track-bracket/middleware"
	"github.com/Dosada05/track-bracket/models"
	"github.com/Dosada05/track-bracket/services"
)

const actionAdvance = "advance"

type GameHandler struct {
	gameService services.GameService
}

func NewGameHandler(gs services.GameService) *GameHandler {
	return &GameHandler{gameService: gs}
}

type createGameRequest struct {
	HostID string `json:"host_id"`
	// HostUserID is the field name older clients send.
	HostUserID string         `json:"host_user_id"`
	HostName   string         `json:"host_name"`
	PlaylistID string         `json:"playlist_id"`
	Tracks     []models.Track `json:"tracks"`
}

// CreateHandler обрабатывает POST /api/game/create
func (h *GameHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	var input createGameRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	hostID := input.HostID
	if strings.TrimSpace(hostID) == "" {
		hostID = input.HostUserID
	}

	game, err := h.gameService.CreateGame(r.Context(), services.CreateGameInput{
		HostID:     hostID,
		HostName:   input.HostName,
		PlaylistID: input.PlaylistID,
		Tracks:     input.Tracks,
		Credential: middleware.BearerCredential(r),
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"game_id": game.ID, "code": game.Code}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type joinGameRequest struct {
	GameIDOrCode string `json:"game_id_or_code"`
	GameID       string `json:"game_id"`
	Code         string `json:"code"`
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
}

// JoinHandler обрабатывает POST /api/game/join. Повторный вход не ошибка.
func (h *GameHandler) JoinHandler(w http.ResponseWriter, r *http.Request) {
	var input joinGameRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	key := firstNonEmpty(input.GameIDOrCode, input.GameID, input.Code)

	participant, err := h.gameService.JoinGame(r.Context(), services.JoinGameInput{
		GameIDOrCode: key,
		UserID:       input.UserID,
		UserName:     input.UserName,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"ok": true, "game_id": participant.GameID}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type castVoteRequest struct {
	GameID     string `json:"game_id"`
	Round      int    `json:"round"`
	MatchupIdx int    `json:"matchup_idx"`
	UserID     string `json:"user_id"`
	TrackID    string `json:"track_id"`
}

// VoteHandler обрабатывает POST /api/game/vote
func (h *GameHandler) VoteHandler(w http.ResponseWriter, r *http.Request) {
	var input castVoteRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	recorded, err := h.gameService.CastVote(r.Context(), services.CastVoteInput(input))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"ok": true, "recorded": recorded}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetHandler обрабатывает GET /api/game?game_id=
func (h *GameHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		badRequestResponse(w, r, errors.New("game_id query parameter is required"))
		return
	}

	view, err := h.gameService.GetGame(r.Context(), gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByCodeHandler обрабатывает GET /api/game/by_code?code=
func (h *GameHandler) GetByCodeHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		badRequestResponse(w, r, errors.New("code query parameter is required"))
		return
	}

	view, err := h.gameService.GetGameByCode(r.Context(), code)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, view, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type gameActionRequest struct {
	Code   string `json:"code"`
	Action string `json:"action"`
}

// ActionHandler обрабатывает POST /api/game/by_code {code, action}.
// Пока поддерживается только action "advance".
func (h *GameHandler) ActionHandler(w http.ResponseWriter, r *http.Request) {
	var input gameActionRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Action != actionAdvance {
		badRequestResponse(w, r, errors.New(`unsupported action, expected "advance"`))
		return
	}

	res, err := h.gameService.Advance(r.Context(), input.Code)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	resp := jsonResponse{
		"bracket":             res.Game.Bracket,
		"outcome":             res.Outcome,
		"state":               res.Game.State(),
		"current_round":       res.Game.CurrentRound,
		"current_matchup_idx": res.Game.CurrentMatchupIdx,
	}
	if res.Outcome == brackets.OutcomeDecided || res.Outcome == brackets.OutcomeAlreadyDecided {
		resp["winner"] = res.Game.Winner
	}
	if res.ResultURL != "" {
		resp["result_url"] = res.ResultURL
	}

	if err := writeJSON(w, http.StatusOK, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// VotesHandler обрабатывает GET /api/game/votes?game_id&round&matchup_idx
func (h *GameHandler) VotesHandler(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		badRequestResponse(w, r, errors.New("game_id query parameter is required"))
		return
	}
	round, err := queryInt(r, "round", 0)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matchupIdx, err := queryInt(r, "matchup_idx", 0)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tally, err := h.gameService.GetVotes(r.Context(), services.VotesQuery{
		GameID:     gameID,
		Round:      round,
		MatchupIdx: matchupIdx,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, tally, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ParticipantsHandler обрабатывает GET /api/game/participants?game_id=
func (h *GameHandler) ParticipantsHandler(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game_id")
	if gameID == "" {
		badRequestResponse(w, r, errors.New("game_id query parameter is required"))
		return
	}

	users, err := h.gameService.ListParticipants(r.Context(), gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"users": users}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// HealthHandler обрабатывает GET /healthz
func (h *GameHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.gameService.Ping(r.Context()); err != nil {
		errorResponse(w, r, http.StatusServiceUnavailable, "storage unavailable", nil)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": "ok"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
