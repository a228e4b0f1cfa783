package state

import "sort"

// GroupKey identifies a group within a round.
type GroupKey struct {
	RoundID uint64
	GroupID uint64
}

// AssetKey identifies an asset within a group.
type AssetKey struct {
	RoundID uint64
	GroupID uint64
	AssetID uint64
}

// BetKey identifies a bet within a round.
type BetKey struct {
	RoundID uint64
	BetID   uint64
}

// Store is the in-memory entity arena for the settlement engine. It is owned
// by the single engine goroutine and is not safe for concurrent use; readers
// outside the engine consume persisted projections instead.
type Store struct {
	config *Config
	rounds map[uint64]*Round
	groups map[GroupKey]*GroupAsset
	assets map[AssetKey]*Asset
	bets   map[BetKey]*Bet
}

func NewStore() *Store {
	return &Store{
		rounds: make(map[uint64]*Round),
		groups: make(map[GroupKey]*GroupAsset),
		assets: make(map[AssetKey]*Asset),
		bets:   make(map[BetKey]*Bet),
	}
}

// Config returns the singleton config, or nil before Initialize.
func (s *Store) Config() *Config {
	return s.config
}

func (s *Store) SetConfig(c *Config) {
	s.config = c
}

func (s *Store) Round(id uint64) (*Round, bool) {
	r, ok := s.rounds[id]
	return r, ok
}

func (s *Store) PutRound(r *Round) {
	s.rounds[r.ID] = r
}

func (s *Store) Group(roundID, groupID uint64) (*GroupAsset, bool) {
	g, ok := s.groups[GroupKey{RoundID: roundID, GroupID: groupID}]
	return g, ok
}

func (s *Store) PutGroup(g *GroupAsset) {
	s.groups[GroupKey{RoundID: g.RoundID, GroupID: g.ID}] = g
}

func (s *Store) Asset(roundID, groupID, assetID uint64) (*Asset, bool) {
	a, ok := s.assets[AssetKey{RoundID: roundID, GroupID: groupID, AssetID: assetID}]
	return a, ok
}

func (s *Store) PutAsset(a *Asset) {
	s.assets[AssetKey{RoundID: a.RoundID, GroupID: a.GroupID, AssetID: a.ID}] = a
}

func (s *Store) Bet(roundID, betID uint64) (*Bet, bool) {
	b, ok := s.bets[BetKey{RoundID: roundID, BetID: betID}]
	return b, ok
}

func (s *Store) PutBet(b *Bet) {
	s.bets[BetKey{RoundID: b.RoundID, BetID: b.ID}] = b
}

// GroupsOfRound returns a round's groups sorted by group id.
func (s *Store) GroupsOfRound(roundID uint64) []*GroupAsset {
	var out []*GroupAsset
	for k, g := range s.groups {
		if k.RoundID == roundID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AssetsOfGroup returns a group's assets sorted by asset id.
func (s *Store) AssetsOfGroup(roundID, groupID uint64) []*Asset {
	var out []*Asset
	for k, a := range s.assets {
		if k.RoundID == roundID && k.GroupID == groupID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BetsOfRound returns a round's bets sorted by bet id.
func (s *Store) BetsOfRound(roundID uint64) []*Bet {
	var out []*Bet
	for k, b := range s.bets {
		if k.RoundID == roundID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllRounds returns every round sorted by id.
func (s *Store) AllRounds() []*Round {
	out := make([]*Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
