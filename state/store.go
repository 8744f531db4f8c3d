package state

import "sync"

// Store is the process-scoped arena for every cached entity, passed
// explicitly to each component. Cross-guild maps are safe for concurrent
// use; the graphs hanging off a Guild are guarded by the pipeline's
// per-guild serialization.
type Store struct {
	users               MapOf[int64, *User]
	fakeUsers           MapOf[int64, *User]
	guilds              MapOf[int64, *Guild]
	textChannels        MapOf[int64, *TextChannel]
	voiceChannels       MapOf[int64, *VoiceChannel]
	categories          MapOf[int64, *Category]
	privateChannels     MapOf[int64, *PrivateChannel]
	fakePrivateChannels MapOf[int64, *PrivateChannel]
	relationships       MapOf[int64, *Relationship]

	selfMu sync.RWMutex
	self   *SelfUser
}

func NewStore() *Store {
	return &Store{}
}

// Reset clears every map, for use on reconnect before a fresh handshake.
func (s *Store) Reset() {
	s.users.Clear()
	s.fakeUsers.Clear()
	s.guilds.Clear()
	s.textChannels.Clear()
	s.voiceChannels.Clear()
	s.categories.Clear()
	s.privateChannels.Clear()
	s.fakePrivateChannels.Clear()
	s.relationships.Clear()
	s.selfMu.Lock()
	s.self = nil
	s.selfMu.Unlock()
}

func (s *Store) SelfUser() *SelfUser {
	s.selfMu.RLock()
	defer s.selfMu.RUnlock()
	return s.self
}

func (s *Store) setSelfUser(self *SelfUser) {
	s.selfMu.Lock()
	s.self = self
	s.selfMu.Unlock()
}

// User returns the authoritatively known user with the given id.
func (s *Store) User(id int64) *User {
	u, _ := s.users.Load(id)
	return u
}

// FakeUser returns the provisional user with the given id.
func (s *Store) FakeUser(id int64) *User {
	u, _ := s.fakeUsers.Load(id)
	return u
}

// AnyUser returns the user with the given id from either map.
func (s *Store) AnyUser(id int64) *User {
	if u := s.User(id); u != nil {
		return u
	}
	return s.FakeUser(id)
}

func (s *Store) Guild(id int64) *Guild {
	g, _ := s.guilds.Load(id)
	return g
}

func (s *Store) TextChannel(id int64) *TextChannel {
	c, _ := s.textChannels.Load(id)
	return c
}

func (s *Store) VoiceChannel(id int64) *VoiceChannel {
	c, _ := s.voiceChannels.Load(id)
	return c
}

func (s *Store) Category(id int64) *Category {
	c, _ := s.categories.Load(id)
	return c
}

func (s *Store) PrivateChannel(id int64) *PrivateChannel {
	c, _ := s.privateChannels.Load(id)
	return c
}

func (s *Store) FakePrivateChannel(id int64) *PrivateChannel {
	c, _ := s.fakePrivateChannels.Load(id)
	return c
}

func (s *Store) Relationship(id int64) *Relationship {
	r, _ := s.relationships.Load(id)
	return r
}

// Friend returns the friend relationship with the given user id, if one
// exists.
func (s *Store) Friend(id int64) *Relationship {
	r := s.Relationship(id)
	if r == nil || r.Type != RelationshipFriend {
		return nil
	}
	return r
}

// Guilds snapshots the guild map.
func (s *Store) Guilds() []*Guild {
	out := make([]*Guild, 0, s.guilds.Len())
	s.guilds.Range(func(_ int64, g *Guild) bool {
		out = append(out, g)
		return true
	})
	return out
}

// Resolvable reports whether the given (kind, id) can be looked up right
// now, which is the event cache's gate for immediate replay.
func (s *Store) Resolvable(kind EntityKind, id int64) bool {
	switch kind {
	case KindUser:
		return s.AnyUser(id) != nil
	case KindGuild:
		g := s.Guild(id)
		return g != nil && g.Available
	case KindChannel:
		return s.TextChannel(id) != nil || s.VoiceChannel(id) != nil ||
			s.Category(id) != nil || s.PrivateChannel(id) != nil || s.FakePrivateChannel(id) != nil
	case KindRole:
		found := false
		s.guilds.Range(func(_ int64, g *Guild) bool {
			if _, ok := g.Roles[id]; ok {
				found = true
				return false
			}
			return true
		})
		return found
	case KindMember:
		// Member keys are (guild, user) pairs; the cache keys them by user
		// id within the deferring handler's guild, so resolvability falls
		// back to the user namespace.
		return s.AnyUser(id) != nil
	default:
		return false
	}
}
