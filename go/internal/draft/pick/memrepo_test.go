package pick

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// memRepo is an in-memory PickRepository. Its mutex plays the part of the draft
// row lock.
type memRepo struct {
	mu      sync.Mutex
	drafts  map[uuid.UUID]*models.Draft
	picks   map[uuid.UUID][]*models.DraftPick
	players []models.Player
	drafted map[uuid.UUID]map[uuid.UUID]uuid.UUID
}

func newMemRepo() *memRepo {
	return &memRepo{
		drafts:  map[uuid.UUID]*models.Draft{},
		picks:   map[uuid.UUID][]*models.DraftPick{},
		drafted: map[uuid.UUID]map[uuid.UUID]uuid.UUID{},
	}
}

func (m *memRepo) addDraft(d models.Draft, picks []models.DraftPick) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.ID] = &d
	m.drafted[d.ID] = map[uuid.UUID]uuid.UUID{}
	for i := range picks {
		p := picks[i]
		m.picks[d.ID] = append(m.picks[d.ID], &p)
	}
}

func (m *memRepo) draft(id uuid.UUID) models.Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.drafts[id]
}

func (m *memRepo) GetDraft(_ context.Context, draftID uuid.UUID) (*models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return nil, models.ErrDraftNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memRepo) findPick(draftID uuid.UUID, match func(*models.DraftPick) bool) (*models.DraftPick, error) {
	for _, p := range m.picks[draftID] {
		if match(p) {
			return p, nil
		}
	}
	return nil, models.ErrPickNotFound
}

func (m *memRepo) GetPick(_ context.Context, draftID, pickID uuid.UUID) (*models.DraftPick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.findPick(draftID, func(p *models.DraftPick) bool { return p.ID == pickID })
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) GetPickByNumber(_ context.Context, draftID uuid.UUID, n int) (*models.DraftPick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.findPick(draftID, func(p *models.DraftPick) bool { return p.TotalPickNumber == n })
	if err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) ListPicks(_ context.Context, draftID uuid.UUID) ([]models.DraftPick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DraftPick
	for _, p := range m.picks[draftID] {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memRepo) ListAvailablePlayers(_ context.Context, draftID uuid.UUID, limit int) ([]models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Player
	for _, p := range m.players {
		if _, taken := m.drafted[draftID][p.ID]; !taken {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) MakePick(_ context.Context, p MakePickParams) (*PickOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[p.DraftID]
	if !ok {
		return nil, models.ErrDraftNotFound
	}
	slot, err := m.findPick(p.DraftID, func(s *models.DraftPick) bool { return s.ID == p.PickID })
	if err != nil {
		return nil, err
	}
	if !m.playerExists(p.PlayerID) {
		return nil, fmt.Errorf("%w: unknown player %s", models.ErrInvalidArgument, p.PlayerID)
	}
	advance, err := checkTurn(d, slot, p.IsKeeper, p.Override)
	if err != nil {
		return nil, err
	}
	if _, taken := m.drafted[d.ID][p.PlayerID]; taken {
		return nil, models.ErrPlayerAlreadyDrafted
	}

	at := p.At
	player := p.PlayerID
	slot.IsPicked, slot.PlayerID, slot.PickedAt, slot.IsKeeper = true, &player, &at, p.IsKeeper
	m.drafted[d.ID][p.PlayerID] = slot.ID

	out := &PickOutcome{Pick: *slot, Advanced: advance}
	if advance {
		next := d.TotalPicks + 1
		for _, s := range m.picks[d.ID] {
			if !s.IsPicked && s.TotalPickNumber > slot.TotalPickNumber && s.TotalPickNumber < next {
				next = s.TotalPickNumber
			}
		}
		d.CurrentPick = &next
		d.UpdatedAt = at
		if next > d.TotalPicks {
			d.Status = models.DraftStatusCompleted
			d.CompletedAt = &at
		} else {
			np, _ := m.findPick(d.ID, func(s *models.DraftPick) bool { return s.TotalPickNumber == next })
			cp := *np
			out.NextPick = &cp
		}
	}
	out.Draft = *d
	return out, nil
}

func (m *memRepo) VacatePick(_ context.Context, draftID, pickID uuid.UUID, at time.Time) (*VacateOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[draftID]
	if !ok {
		return nil, models.ErrDraftNotFound
	}
	if d.Status == models.DraftStatusPending || d.CurrentPick == nil {
		return nil, models.ErrDraftNotInProgress
	}
	slot, err := m.findPick(draftID, func(s *models.DraftPick) bool { return s.ID == pickID })
	if err != nil {
		return nil, err
	}
	if !slot.IsPicked {
		return nil, models.ErrPickNotMade
	}

	latest := 0
	for _, s := range m.picks[draftID] {
		if s.IsPicked && s.TotalPickNumber < *d.CurrentPick && s.TotalPickNumber > latest {
			latest = s.TotalPickNumber
		}
	}
	rewind := latest == slot.TotalPickNumber

	delete(m.drafted[draftID], *slot.PlayerID)
	slot.IsPicked, slot.PlayerID, slot.PickedAt, slot.IsKeeper = false, nil, nil, false
	if rewind {
		n := slot.TotalPickNumber
		d.CurrentPick = &n
		d.Status = models.DraftStatusInProgress
		d.CompletedAt = nil
		d.UpdatedAt = at
	}
	return &VacateOutcome{Pick: *slot, Draft: *d, Rewound: rewind}, nil
}

func (m *memRepo) SetKeeper(ctx context.Context, req KeeperRequest, at time.Time) (*PickOutcome, error) {
	if req.IsKeeper && req.PlayerID != nil {
		return m.MakePick(ctx, MakePickParams{DraftID: req.DraftID, PickID: req.PickID, PlayerID: *req.PlayerID, IsKeeper: true, At: at})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[req.DraftID]
	if !ok {
		return nil, models.ErrDraftNotFound
	}
	slot, err := m.findPick(req.DraftID, func(s *models.DraftPick) bool { return s.ID == req.PickID })
	if err != nil {
		return nil, err
	}
	if req.IsKeeper && !slot.IsPicked {
		return nil, fmt.Errorf("%w: a keeper needs a player", models.ErrInvalidArgument)
	}
	slot.IsKeeper = req.IsKeeper
	return &PickOutcome{Pick: *slot, Draft: *d}, nil
}

func (m *memRepo) playerExists(id uuid.UUID) bool {
	for _, p := range m.players {
		if p.ID == id {
			return true
		}
	}
	return false
}
