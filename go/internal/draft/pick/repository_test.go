package pick_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/database/dbtest"
	"github.com/mcdev12/draftclock/go/internal/draft/events"
	"github.com/mcdev12/draftclock/go/internal/draft/outbox"
	"github.com/mcdev12/draftclock/go/internal/draft/pick"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/stretchr/testify/suite"
)

type RepositoryTestSuite struct {
	suite.Suite
	db     *sql.DB
	repo   *pick.Repository
	outbox *outbox.Repository
	f      dbtest.Fixture
	now    time.Time
}

func (s *RepositoryTestSuite) SetupSuite() {
	s.db = dbtest.Open(s.T())
	s.outbox = outbox.NewRepository(s.db)
	s.repo = pick.NewRepository(s.db, s.outbox)
}

func (s *RepositoryTestSuite) SetupTest() {
	dbtest.Truncate(s.T(), s.db)
	s.f = dbtest.SeedDraft(s.T(), s.db, dbtest.DraftParams{Teams: 2, Rounds: 2, UseTimer: true})
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *RepositoryTestSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *RepositoryTestSuite) makePick(n, player int) (*pick.PickOutcome, error) {
	return s.repo.MakePick(context.Background(), pick.MakePickParams{
		DraftID:  s.f.DraftID,
		PickID:   s.f.PickAt(n).ID,
		PlayerID: s.f.Players[player].ID,
		At:       s.now,
	})
}

func (s *RepositoryTestSuite) outboxTypes() []string {
	unsent, err := s.outbox.FetchUnsent(context.Background(), 100)
	s.Require().NoError(err)
	var out []string
	for _, ev := range unsent {
		out = append(out, ev.EventType)
	}
	return out
}

func (s *RepositoryTestSuite) TestMakePickAdvancesCursor() {
	out, err := s.makePick(1, 0)
	s.Require().NoError(err)
	s.True(out.Advanced)
	s.True(out.Pick.IsPicked)
	s.Equal(s.f.Players[0].ID, *out.Pick.PlayerID)
	s.True(out.Pick.PickedAt.Equal(s.now))
	s.Equal(2, *out.Draft.CurrentPick)
	s.Require().NotNil(out.NextPick)
	s.Equal(s.f.PickAt(2).ID, out.NextPick.ID)
	s.Equal([]string{events.TypePickMade}, s.outboxTypes())

	d, err := s.repo.GetDraft(context.Background(), s.f.DraftID)
	s.Require().NoError(err)
	s.Equal(2, *d.CurrentPick)
}

func (s *RepositoryTestSuite) TestMakePickRejections() {
	_, err := s.makePick(1, 0)
	s.Require().NoError(err)

	_, err = s.makePick(1, 1)
	s.ErrorIs(err, models.ErrPickAlreadyMade)

	_, err = s.makePick(3, 1)
	s.ErrorIs(err, models.ErrNotCurrentPick)

	_, err = s.makePick(2, 0)
	s.ErrorIs(err, models.ErrPlayerAlreadyDrafted)

	_, err = s.repo.MakePick(context.Background(), pick.MakePickParams{DraftID: s.f.DraftID, PickID: s.f.PickAt(2).ID, PlayerID: uuid.New(), At: s.now})
	s.ErrorIs(err, models.ErrInvalidArgument)

	_, err = s.repo.MakePick(context.Background(), pick.MakePickParams{DraftID: uuid.New(), PickID: s.f.PickAt(2).ID, PlayerID: s.f.Players[1].ID, At: s.now})
	s.ErrorIs(err, models.ErrDraftNotFound)

	d, err := s.repo.GetDraft(context.Background(), s.f.DraftID)
	s.Require().NoError(err)
	s.Equal(2, *d.CurrentPick)
	s.Len(s.outboxTypes(), 1, "rejected writes leave no outbox rows")
}

func (s *RepositoryTestSuite) TestConcurrentSubmissionsOneWins() {
	const racers = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.makePick(1, i)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(i)
	}
	close(start)
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		s.True(errors.Is(err, models.ErrConflict), "loser got %v", err)
	}
	s.Equal(1, wins)

	d, err := s.repo.GetDraft(context.Background(), s.f.DraftID)
	s.Require().NoError(err)
	s.Equal(2, *d.CurrentPick)
	s.Equal([]string{events.TypePickMade}, s.outboxTypes())
}

func (s *RepositoryTestSuite) TestLastPickCompletesDraft() {
	for n := 1; n <= 4; n++ {
		out, err := s.makePick(n, n-1)
		s.Require().NoError(err)
		if n < 4 {
			s.NotNil(out.NextPick)
			continue
		}
		s.True(out.Completed())
		s.Nil(out.NextPick)
		s.Equal(5, *out.Draft.CurrentPick)
		s.NotNil(out.Draft.CompletedAt)
	}

	types := s.outboxTypes()
	s.Equal(events.TypeDraftCompleted, types[len(types)-1])
}

func (s *RepositoryTestSuite) TestVacateLatestRewinds() {
	ctx := context.Background()
	_, err := s.makePick(1, 0)
	s.Require().NoError(err)
	_, err = s.makePick(2, 1)
	s.Require().NoError(err)

	out, err := s.repo.VacatePick(ctx, s.f.DraftID, s.f.PickAt(2).ID, s.now)
	s.Require().NoError(err)
	s.True(out.Rewound)
	s.Equal(2, *out.Draft.CurrentPick)
	s.False(out.Pick.IsPicked)

	// The player is available again.
	_, err = s.makePick(2, 1)
	s.Require().NoError(err)

	_, err = s.repo.VacatePick(ctx, s.f.DraftID, s.f.PickAt(3).ID, s.now)
	s.ErrorIs(err, models.ErrPickNotMade)
}

func (s *RepositoryTestSuite) TestVacateEarlierPickKeepsLaterPicks() {
	ctx := context.Background()
	_, err := s.makePick(1, 0)
	s.Require().NoError(err)
	_, err = s.makePick(2, 1)
	s.Require().NoError(err)

	out, err := s.repo.VacatePick(ctx, s.f.DraftID, s.f.PickAt(1).ID, s.now)
	s.Require().NoError(err)
	s.False(out.Rewound)
	s.Equal(3, *out.Draft.CurrentPick)

	picks, err := s.repo.ListPicks(ctx, s.f.DraftID)
	s.Require().NoError(err)
	s.False(picks[0].IsPicked)
	s.True(picks[1].IsPicked)

	refill, err := s.repo.MakePick(ctx, pick.MakePickParams{DraftID: s.f.DraftID, PickID: s.f.PickAt(1).ID, PlayerID: s.f.Players[5].ID, Override: true, At: s.now})
	s.Require().NoError(err)
	s.False(refill.Advanced)
	s.Equal(3, *refill.Draft.CurrentPick)
}

func (s *RepositoryTestSuite) TestKeepers() {
	ctx := context.Background()
	player := s.f.Players[0].ID

	out, err := s.repo.SetKeeper(ctx, pick.KeeperRequest{DraftID: s.f.DraftID, PickID: s.f.PickAt(2).ID, IsKeeper: true, PlayerID: &player}, s.now)
	s.Require().NoError(err)
	s.True(out.Pick.IsKeeper)
	s.False(out.Advanced)

	next, err := s.makePick(1, 1)
	s.Require().NoError(err)
	s.Equal(3, *next.Draft.CurrentPick, "the cursor skips the kept slot")

	_, err = s.repo.SetKeeper(ctx, pick.KeeperRequest{DraftID: s.f.DraftID, PickID: s.f.PickAt(4).ID, IsKeeper: true}, s.now)
	s.ErrorIs(err, models.ErrInvalidArgument)

	unflagged, err := s.repo.SetKeeper(ctx, pick.KeeperRequest{DraftID: s.f.DraftID, PickID: s.f.PickAt(2).ID, IsKeeper: false}, s.now)
	s.Require().NoError(err)
	s.False(unflagged.Pick.IsKeeper)
	s.True(unflagged.Pick.IsPicked)
}

func (s *RepositoryTestSuite) TestAvailablePlayers() {
	_, err := s.makePick(1, 0)
	s.Require().NoError(err)

	players, err := s.repo.ListAvailablePlayers(context.Background(), s.f.DraftID, 3)
	s.Require().NoError(err)
	s.Require().Len(players, 3)
	s.Equal(s.f.Players[1].ID, players[0].ID)
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
