package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dosada05/track-bracket/models"
)

// MemoryStore implements GameRepository, ParticipantRepository and
// VoteRepository in process memory. It keeps the same contract as the
// Postgres repositories: atomic game updates, unique participants, first
// vote wins. Returned games are copies.
type MemoryStore struct {
	codes CodeGenerator
	now   func() time.Time

	mu           sync.RWMutex
	games        map[string]*models.Game
	codeIndex    map[string]string
	participants map[string][]models.Participant
	votes        map[models.VoteKey][]models.Vote

	locksMu   sync.Mutex
	gameLocks map[string]*sync.Mutex
}

func NewMemoryStore(codes CodeGenerator) *MemoryStore {
	if codes == nil {
		codes = NewCodeGenerator()
	}
	return &MemoryStore{
		codes:        codes,
		now:          time.Now,
		games:        make(map[string]*models.Game),
		codeIndex:    make(map[string]string),
		participants: make(map[string][]models.Participant),
		votes:        make(map[models.VoteKey][]models.Vote),
		gameLocks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) CreateGame(ctx context.Context, g *models.Game) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return insertWithUniqueCode(ctx, s.codes, func(code string) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, taken := s.codeIndex[code]; taken {
			return ErrCodeConflict
		}
		if _, exists := s.games[g.ID]; exists {
			return fmt.Errorf("game %s already exists", g.ID)
		}
		now := s.now().UTC()
		g.Code = code
		g.CreatedAt = now
		g.UpdatedAt = now
		s.games[g.ID] = g.Clone()
		s.codeIndex[code] = g.ID
		return nil
	})
}

func (s *MemoryStore) GetGameByID(ctx context.Context, id string) (*models.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return g.Clone(), nil
}

func (s *MemoryStore) GetGameByCode(ctx context.Context, code string) (*models.Game, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	id, ok := s.codeIndex[NormalizeCode(code)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrGameNotFound
	}
	return s.GetGameByID(ctx, id)
}

func (s *MemoryStore) UpdateGameAtomic(ctx context.Context, id string, mutate GameMutator) (*models.Game, error) {
	lock, err := s.gameLock(id)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	// The store lock is not held while mutate runs, so the mutator may read
	// votes or participants from this store.
	game, err := s.GetGameByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := game.Validate(); err != nil {
		return nil, err
	}
	if err := mutate(ctx, game, s); err != nil {
		return nil, err
	}
	if err := game.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to persist game %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	// Only the mutable part of the document is written back.
	stored.Bracket = game.Bracket.Clone()
	stored.CurrentRound = game.CurrentRound
	stored.CurrentMatchupIdx = game.CurrentMatchupIdx
	stored.Winner = nil
	if game.Winner != nil {
		w := *game.Winner
		stored.Winner = &w
	}
	stored.UpdatedAt = s.now().UTC()
	game.UpdatedAt = stored.UpdatedAt
	return game, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) AddParticipant(ctx context.Context, p *models.Participant) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[p.GameID]; !ok {
		return false, ErrGameNotFound
	}
	for _, existing := range s.participants[p.GameID] {
		if existing.UserID == p.UserID {
			return false, nil
		}
	}
	p.JoinedAt = s.now().UTC()
	s.participants[p.GameID] = append(s.participants[p.GameID], *p)
	return true, nil
}

func (s *MemoryStore) ListParticipants(ctx context.Context, gameID string) ([]models.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.participants[gameID]
	out := make([]models.Participant, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) RecordVote(ctx context.Context, v *models.Vote) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[v.GameID]; !ok {
		return false, ErrGameNotFound
	}
	key := models.VoteKey{GameID: v.GameID, Round: v.Round, MatchupIdx: v.MatchupIdx}
	for _, existing := range s.votes[key] {
		if existing.UserID == v.UserID {
			return false, nil
		}
	}
	v.CreatedAt = s.now().UTC()
	s.votes[key] = append(s.votes[key], *v)
	return true, nil
}

func (s *MemoryStore) TallyVotes(ctx context.Context, key models.VoteKey) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, v := range s.votes[key] {
		counts[v.TrackID]++
	}
	return counts, nil
}

func (s *MemoryStore) ListVotes(ctx context.Context, key models.VoteKey) ([]models.Vote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Vote, len(s.votes[key]))
	copy(out, s.votes[key])
	return out, nil
}

// gameLock returns the per-game update lock. Games are never removed, so a
// lock exists only for ids that were created.
func (s *MemoryStore) gameLock(id string) (*sync.Mutex, error) {
	s.mu.RLock()
	_, ok := s.games[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrGameNotFound
	}

	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.gameLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.gameLocks[id] = l
	}
	return l, nil
}
