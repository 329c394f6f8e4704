package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/track-bracket/brackets"
	"github.com/Dosada05/track-bracket/catalog"
	"github.com/Dosada05/track-bracket/metrics"
	"github.com/Dosada05/track-bracket/models"
	"github.com/Dosada05/track-bracket/repositories"
)

type CreateGameInput struct {
	HostID     string
	HostName   string
	PlaylistID string
	Tracks     []models.Track
	// Credential is used to fetch the playlist when Tracks is empty.
	Credential string
}

type JoinGameInput struct {
	GameIDOrCode string
	UserID       string
	UserName     string
}

type CastVoteInput struct {
	GameID     string
	Round      int
	MatchupIdx int
	UserID     string
	TrackID    string
}

type VotesQuery struct {
	GameID     string
	Round      int
	MatchupIdx int
}

// GameView is what pollers receive: the game document and who has joined.
type GameView struct {
	Game         *models.Game         `json:"game"`
	Participants []models.Participant `json:"users"`
}

type AdvanceResult struct {
	Game    *models.Game
	Outcome brackets.Outcome
	// ResultURL points at the archived final bracket once the game is decided.
	ResultURL string
}

// ResultArchiver publishes the final document of a decided game.
type ResultArchiver interface {
	Archive(ctx context.Context, game *models.Game) (string, error)
	URL(gameID string) string
}

type GameService interface {
	CreateGame(ctx context.Context, input CreateGameInput) (*models.Game, error)
	JoinGame(ctx context.Context, input JoinGameInput) (*models.Participant, error)
	CastVote(ctx context.Context, input CastVoteInput) (recorded bool, err error)
	Advance(ctx context.Context, code string) (*AdvanceResult, error)
	GetGame(ctx context.Context, gameID string) (*GameView, error)
	GetGameByCode(ctx context.Context, code string) (*GameView, error)
	GetVotes(ctx context.Context, query VotesQuery) (*brackets.Tally, error)
	ListParticipants(ctx context.Context, gameID string) ([]models.Participant, error)
	Ping(ctx context.Context) error
}

type GameServiceDeps struct {
	Games        repositories.GameRepository
	Votes        repositories.VoteRepository
	Participants repositories.ParticipantRepository
	Generator    brackets.BracketGenerator
	Advancer     *brackets.Advancer
	Catalog      catalog.Client
	Archiver     ResultArchiver // nil disables archiving
	Metrics      metrics.Recorder
	Logger       *slog.Logger
	// RetryInterval is the pause before the single retry of a transient failure.
	RetryInterval time.Duration
}

type gameService struct {
	games        repositories.GameRepository
	votes        repositories.VoteRepository
	participants repositories.ParticipantRepository
	generator    brackets.BracketGenerator
	advancer     *brackets.Advancer
	catalog      catalog.Client
	archiver     ResultArchiver
	metrics      metrics.Recorder
	logger       *slog.Logger
	retry        retrier
}

func NewGameService(deps GameServiceDeps) GameService {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopRecorder()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Generator == nil {
		deps.Generator = brackets.NewSingleEliminationGenerator(nil)
	}
	if deps.Advancer == nil {
		deps.Advancer = brackets.NewAdvancer(nil)
	}
	if deps.RetryInterval <= 0 {
		deps.RetryInterval = 100 * time.Millisecond
	}
	return &gameService{
		games:        deps.Games,
		votes:        deps.Votes,
		participants: deps.Participants,
		generator:    deps.Generator,
		advancer:     deps.Advancer,
		catalog:      deps.Catalog,
		archiver:     deps.Archiver,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		retry: retrier{
			initialInterval: deps.RetryInterval,
			metrics:         deps.Metrics,
			logger:          deps.Logger,
		},
	}
}

func (s *gameService) CreateGame(ctx context.Context, input CreateGameInput) (*models.Game, error) {
	hostID := strings.TrimSpace(input.HostID)
	if hostID == "" {
		return nil, validationError("host_id is required")
	}
	playlistID := strings.TrimSpace(input.PlaylistID)

	tracks := input.Tracks
	if len(tracks) == 0 && playlistID != "" {
		if s.catalog == nil || strings.TrimSpace(input.Credential) == "" {
			return nil, validationError("tracks are required when no catalog credential is given")
		}
		fetched, err := s.catalog.ListTracks(ctx, input.Credential, playlistID)
		if err != nil {
			return nil, mapCatalogError(err)
		}
		tracks = fetched
	}

	pool, err := normalizePool(tracks)
	if err != nil {
		return nil, err
	}

	bracket, err := s.generator.GenerateBracket(ctx, brackets.GenerateBracketParams{Tracks: pool})
	if err != nil {
		return nil, fmt.Errorf("failed to generate bracket: %w", err)
	}

	game := &models.Game{
		ID:         uuid.NewString(),
		HostID:     hostID,
		PlaylistID: playlistID,
		TrackPool:  pool,
		Bracket:    *bracket,
	}
	if err := s.retry.do(ctx, "create_game", func() error {
		return s.games.CreateGame(ctx, game)
	}); err != nil {
		return nil, err
	}
	s.metrics.GameCreated()

	hostName := strings.TrimSpace(input.HostName)
	if hostName == "" {
		hostName = hostID
	}
	host := &models.Participant{GameID: game.ID, UserID: hostID, UserName: hostName}
	if err := s.retry.do(ctx, "add_participant", func() error {
		_, err := s.participants.AddParticipant(ctx, host)
		return err
	}); err != nil {
		// Хост может присоединиться вручную, игра уже создана.
		s.logger.Warn("failed to add host as participant",
			slog.String("game_id", game.ID), slog.Any("error", err))
	}

	s.logger.Info("game created",
		slog.String("game_id", game.ID),
		slog.String("code", game.Code),
		slog.Int("tracks", len(pool)),
		slog.Int("matchups", len(game.Bracket.Rounds[0].Matches)))
	return game, nil
}

// normalizePool drops repeated track ids, keeping the first occurrence.
func normalizePool(tracks []models.Track) ([]models.Track, error) {
	pool := make([]models.Track, 0, len(tracks))
	seen := make(map[string]struct{}, len(tracks))
	for i, t := range tracks {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, validationError("track at position %d has no id", i)
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		pool = append(pool, t)
	}
	if len(pool) == 0 {
		return nil, validationError("at least one track is required")
	}
	return pool, nil
}

func (s *gameService) JoinGame(ctx context.Context, input JoinGameInput) (*models.Participant, error) {
	key := strings.TrimSpace(input.GameIDOrCode)
	userID := strings.TrimSpace(input.UserID)
	if key == "" {
		return nil, validationError("game_id or code is required")
	}
	if userID == "" {
		return nil, validationError("user_id is required")
	}

	game, err := s.resolveGame(ctx, key)
	if err != nil {
		return nil, err
	}

	userName := strings.TrimSpace(input.UserName)
	if userName == "" {
		userName = userID
	}
	p := &models.Participant{GameID: game.ID, UserID: userID, UserName: userName}

	var created bool
	if err := s.retry.do(ctx, "add_participant", func() error {
		var addErr error
		created, addErr = s.participants.AddParticipant(ctx, p)
		return addErr
	}); err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("participant joined", slog.String("game_id", game.ID), slog.String("user_id", userID))
	}
	return p, nil
}

// resolveGame accepts either a game id or a join code.
func (s *gameService) resolveGame(ctx context.Context, key string) (*models.Game, error) {
	var game *models.Game
	err := s.retry.do(ctx, "get_game", func() error {
		var err error
		if _, parseErr := uuid.Parse(key); parseErr == nil {
			game, err = s.games.GetGameByID(ctx, key)
		} else {
			game, err = s.games.GetGameByCode(ctx, key)
		}
		return err
	})
	return game, err
}

func (s *gameService) CastVote(ctx context.Context, input CastVoteInput) (bool, error) {
	vote := models.Vote{
		GameID:     strings.TrimSpace(input.GameID),
		Round:      input.Round,
		MatchupIdx: input.MatchupIdx,
		UserID:     strings.TrimSpace(input.UserID),
		TrackID:    strings.TrimSpace(input.TrackID),
	}
	switch {
	case vote.GameID == "":
		return false, validationError("game_id is required")
	case vote.UserID == "":
		return false, validationError("user_id is required")
	case vote.TrackID == "":
		return false, validationError("track_id is required")
	case vote.Round < 0 || vote.MatchupIdx < 0:
		return false, validationError("round and matchup_idx must not be negative")
	}

	var game *models.Game
	if err := s.retry.do(ctx, "get_game", func() error {
		var err error
		game, err = s.games.GetGameByID(ctx, vote.GameID)
		return err
	}); err != nil {
		return false, err
	}
	if game.IsDecided() {
		return false, validationError("game %s is already decided", game.ID)
	}
	matchup, ok := game.MatchupAt(vote.Round, vote.MatchupIdx)
	if !ok {
		return false, validationError("no matchup %d in round %d", vote.MatchupIdx, vote.Round)
	}
	if !matchup.HasContestant(vote.TrackID) {
		return false, validationError("track %s is not part of matchup %s", vote.TrackID, matchup.MatchID)
	}

	var recorded bool
	if err := s.retry.do(ctx, "record_vote", func() error {
		var err error
		recorded, err = s.votes.RecordVote(ctx, &vote)
		return err
	}); err != nil {
		return false, err
	}
	if recorded {
		s.metrics.VoteRecorded()
	}
	return recorded, nil
}

// errNothingToAdvance aborts the atomic update of a decided game without a write.
var errNothingToAdvance = errors.New("game already decided")

func (s *gameService) Advance(ctx context.Context, code string) (*AdvanceResult, error) {
	code = repositories.NormalizeCode(code)
	if code == "" {
		return nil, validationError("code is required")
	}

	var game *models.Game
	if err := s.retry.do(ctx, "get_game", func() error {
		var err error
		game, err = s.games.GetGameByCode(ctx, code)
		return err
	}); err != nil {
		return nil, err
	}

	var (
		outcome brackets.Outcome
		updated *models.Game
	)
	err := s.retry.do(ctx, "advance", func() error {
		var snapshot *models.Game
		g, err := s.games.UpdateGameAtomic(ctx, game.ID, func(ctx context.Context, g *models.Game, votes repositories.VoteCounter) error {
			if g.IsDecided() {
				snapshot = g.Clone()
				return errNothingToAdvance
			}
			tally, err := currentTally(ctx, votes, g)
			if err != nil {
				return err
			}
			outcome, err = s.advancer.Advance(g, tally)
			return err
		})
		if errors.Is(err, errNothingToAdvance) {
			outcome, updated = brackets.OutcomeAlreadyDecided, snapshot
			return nil
		}
		if err != nil {
			return err
		}
		updated = g
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCorruptedState) {
			s.logger.Error("corrupted game state", slog.String("game_id", game.ID), slog.Any("error", err))
		}
		return nil, err
	}
	s.metrics.Advanced(string(outcome))

	result := &AdvanceResult{Game: updated, Outcome: outcome}
	s.logger.Info("game advanced",
		slog.String("game_id", updated.ID),
		slog.String("outcome", string(outcome)),
		slog.Int("round", updated.CurrentRound),
		slog.Int("matchup_idx", updated.CurrentMatchupIdx))

	if s.archiver != nil {
		switch outcome {
		case brackets.OutcomeDecided:
			url, err := s.archiver.Archive(ctx, updated)
			if err != nil {
				s.logger.Warn("failed to archive decided game", slog.String("game_id", updated.ID), slog.Any("error", err))
			} else {
				result.ResultURL = url
			}
		case brackets.OutcomeAlreadyDecided:
			result.ResultURL = s.archiver.URL(updated.ID)
		}
	}
	return result, nil
}

// currentTally reads the votes of the matchup under the cursor in one query,
// through the counter of the locking transaction. Resolved matchups are never
// re-tallied.
func currentTally(ctx context.Context, votes repositories.VoteCounter, g *models.Game) (brackets.Tally, error) {
	m, err := g.CurrentMatchup()
	if err != nil {
		return brackets.Tally{}, err
	}
	if m.IsResolved() {
		return brackets.TallyFromCounts(nil), nil
	}
	counts, err := votes.TallyVotes(ctx, models.VoteKey{
		GameID:     g.ID,
		Round:      g.CurrentRound,
		MatchupIdx: g.CurrentMatchupIdx,
	})
	if err != nil {
		return brackets.Tally{}, err
	}
	return brackets.TallyFromCounts(counts), nil
}

func (s *gameService) GetGame(ctx context.Context, gameID string) (*GameView, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, validationError("game_id is required")
	}

	view := &GameView{}
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.retry.do(gCtx, "get_game", func() error {
			game, err := s.games.GetGameByID(gCtx, gameID)
			view.Game = game
			return err
		})
	})
	g.Go(func() error {
		return s.retry.do(gCtx, "list_participants", func() error {
			list, err := s.participants.ListParticipants(gCtx, gameID)
			view.Participants = list
			return err
		})
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return view, nil
}

func (s *gameService) GetGameByCode(ctx context.Context, code string) (*GameView, error) {
	code = repositories.NormalizeCode(code)
	if code == "" {
		return nil, validationError("code is required")
	}
	var game *models.Game
	if err := s.retry.do(ctx, "get_game", func() error {
		var err error
		game, err = s.games.GetGameByCode(ctx, code)
		return err
	}); err != nil {
		return nil, err
	}
	participants, err := s.ListParticipants(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	return &GameView{Game: game, Participants: participants}, nil
}

func (s *gameService) GetVotes(ctx context.Context, query VotesQuery) (*brackets.Tally, error) {
	query.GameID = strings.TrimSpace(query.GameID)
	if query.GameID == "" {
		return nil, validationError("game_id is required")
	}
	if query.Round < 0 || query.MatchupIdx < 0 {
		return nil, validationError("round and matchup_idx must not be negative")
	}

	var votes []models.Vote
	if err := s.retry.do(ctx, "list_votes", func() error {
		var err error
		votes, err = s.votes.ListVotes(ctx, models.VoteKey{
			GameID:     query.GameID,
			Round:      query.Round,
			MatchupIdx: query.MatchupIdx,
		})
		return err
	}); err != nil {
		return nil, err
	}
	tally := brackets.NewTally(votes)
	return &tally, nil
}

func (s *gameService) ListParticipants(ctx context.Context, gameID string) ([]models.Participant, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, validationError("game_id is required")
	}
	var list []models.Participant
	err := s.retry.do(ctx, "list_participants", func() error {
		var err error
		list, err = s.participants.ListParticipants(ctx, gameID)
		return err
	})
	return list, err
}

func (s *gameService) Ping(ctx context.Context) error {
	return mapRepoError(s.games.Ping(ctx))
}
