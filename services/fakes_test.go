package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/track-bracket/brackets"
	"github.com/Dosada05/track-bracket/models"
	"github.com/Dosada05/track-bracket/repositories"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubRand keeps the pool order and flips a fixed coin.
type stubRand struct {
	coin int
}

func (stubRand) Shuffle(int, func(i, j int)) {}
func (s stubRand) IntN(int) int              { return s.coin }

// FakeGameRepository delegates to a MemoryStore unless a Func field is set.
// When Votes is set, mutators count votes through it instead of the store.
type FakeGameRepository struct {
	inner *repositories.MemoryStore
	Votes repositories.VoteCounter

	CreateGameFunc       func(ctx context.Context, game *models.Game) error
	GetGameByIDFunc      func(ctx context.Context, id string) (*models.Game, error)
	GetGameByCodeFunc    func(ctx context.Context, code string) (*models.Game, error)
	UpdateGameAtomicFunc func(ctx context.Context, id string, mutate repositories.GameMutator) (*models.Game, error)
	PingFunc             func(ctx context.Context) error
}

func (f *FakeGameRepository) CreateGame(ctx context.Context, game *models.Game) error {
	if f.CreateGameFunc != nil {
		return f.CreateGameFunc(ctx, game)
	}
	return f.inner.CreateGame(ctx, game)
}

func (f *FakeGameRepository) GetGameByID(ctx context.Context, id string) (*models.Game, error) {
	if f.GetGameByIDFunc != nil {
		return f.GetGameByIDFunc(ctx, id)
	}
	return f.inner.GetGameByID(ctx, id)
}

func (f *FakeGameRepository) GetGameByCode(ctx context.Context, code string) (*models.Game, error) {
	if f.GetGameByCodeFunc != nil {
		return f.GetGameByCodeFunc(ctx, code)
	}
	return f.inner.GetGameByCode(ctx, code)
}

func (f *FakeGameRepository) UpdateGameAtomic(ctx context.Context, id string, mutate repositories.GameMutator) (*models.Game, error) {
	if f.UpdateGameAtomicFunc != nil {
		return f.UpdateGameAtomicFunc(ctx, id, mutate)
	}
	if f.Votes != nil {
		return f.inner.UpdateGameAtomic(ctx, id, func(ctx context.Context, g *models.Game, _ repositories.VoteCounter) error {
			return mutate(ctx, g, f.Votes)
		})
	}
	return f.inner.UpdateGameAtomic(ctx, id, mutate)
}

func (f *FakeGameRepository) Ping(ctx context.Context) error {
	if f.PingFunc != nil {
		return f.PingFunc(ctx)
	}
	return f.inner.Ping(ctx)
}

type FakeVoteRepository struct {
	inner *repositories.MemoryStore

	RecordVoteFunc func(ctx context.Context, v *models.Vote) (bool, error)
	TallyVotesFunc func(ctx context.Context, key models.VoteKey) (map[string]int, error)
	ListVotesFunc  func(ctx context.Context, key models.VoteKey) ([]models.Vote, error)
}

func (f *FakeVoteRepository) RecordVote(ctx context.Context, v *models.Vote) (bool, error) {
	if f.RecordVoteFunc != nil {
		return f.RecordVoteFunc(ctx, v)
	}
	return f.inner.RecordVote(ctx, v)
}

func (f *FakeVoteRepository) TallyVotes(ctx context.Context, key models.VoteKey) (map[string]int, error) {
	if f.TallyVotesFunc != nil {
		return f.TallyVotesFunc(ctx, key)
	}
	return f.inner.TallyVotes(ctx, key)
}

func (f *FakeVoteRepository) ListVotes(ctx context.Context, key models.VoteKey) ([]models.Vote, error) {
	if f.ListVotesFunc != nil {
		return f.ListVotesFunc(ctx, key)
	}
	return f.inner.ListVotes(ctx, key)
}

type FakeParticipantRepository struct {
	inner *repositories.MemoryStore

	AddParticipantFunc   func(ctx context.Context, p *models.Participant) (bool, error)
	ListParticipantsFunc func(ctx context.Context, gameID string) ([]models.Participant, error)
}

func (f *FakeParticipantRepository) AddParticipant(ctx context.Context, p *models.Participant) (bool, error) {
	if f.AddParticipantFunc != nil {
		return f.AddParticipantFunc(ctx, p)
	}
	return f.inner.AddParticipant(ctx, p)
}

func (f *FakeParticipantRepository) ListParticipants(ctx context.Context, gameID string) ([]models.Participant, error) {
	if f.ListParticipantsFunc != nil {
		return f.ListParticipantsFunc(ctx, gameID)
	}
	return f.inner.ListParticipants(ctx, gameID)
}

type FakeCatalog struct {
	ListPlaylistsFunc func(ctx context.Context, credential string) ([]models.Playlist, error)
	ListTracksFunc    func(ctx context.Context, credential, playlistID string) ([]models.Track, error)
}

func (f *FakeCatalog) ListPlaylists(ctx context.Context, credential string) ([]models.Playlist, error) {
	return f.ListPlaylistsFunc(ctx, credential)
}

func (f *FakeCatalog) ListTracks(ctx context.Context, credential, playlistID string) ([]models.Track, error) {
	return f.ListTracksFunc(ctx, credential, playlistID)
}

type FakeArchiver struct {
	ArchiveFunc func(ctx context.Context, game *models.Game) (string, error)
}

func (f *FakeArchiver) Archive(ctx context.Context, game *models.Game) (string, error) {
	return f.ArchiveFunc(ctx, game)
}

func (f *FakeArchiver) URL(gameID string) string {
	return "https://results.example/" + gameID + ".json"
}

// countingRecorder remembers every metric event.
type countingRecorder struct {
	mu       sync.Mutex
	created  int
	votes    int
	outcomes []string
	retries  []string
}

func (r *countingRecorder) GameCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *countingRecorder) VoteRecorded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes++
}

func (r *countingRecorder) Advanced(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *countingRecorder) StorageRetry(operation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, operation)
}

func (r *countingRecorder) retryOps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.retries...)
}

type testEnv struct {
	store        *repositories.MemoryStore
	games        *FakeGameRepository
	votes        *FakeVoteRepository
	participants *FakeParticipantRepository
	recorder     *countingRecorder
	deps         GameServiceDeps
}

// newTestEnv wires fakes over one MemoryStore. Shuffling is disabled and
// ties go to track A.
func newTestEnv() *testEnv {
	store := repositories.NewMemoryStore(nil)
	env := &testEnv{
		store:        store,
		games:        &FakeGameRepository{inner: store},
		votes:        &FakeVoteRepository{inner: store},
		participants: &FakeParticipantRepository{inner: store},
		recorder:     &countingRecorder{},
	}
	env.games.Votes = env.votes
	env.deps = GameServiceDeps{
		Games:         env.games,
		Votes:         env.votes,
		Participants:  env.participants,
		Metrics:       env.recorder,
		Logger:        discardLogger(),
		RetryInterval: time.Millisecond,
	}
	return env
}

func (e *testEnv) service() GameService {
	deps := e.deps
	if deps.Generator == nil {
		deps.Generator = brackets.NewSingleEliminationGenerator(stubRand{})
	}
	if deps.Advancer == nil {
		deps.Advancer = brackets.NewAdvancer(stubRand{})
	}
	return NewGameService(deps)
}
