package state

// GuildLock gates event processing per guild while that guild's bootstrap
// is in flight. Handlers scoped to a locked guild hand the guild id back to
// the pipeline instead of mutating the graph; the pipeline requeues the raw
// event by sequence number and replays it once the guild unlocks.
type GuildLock struct {
	locked  MapOf[int64, struct{}]
	metrics *Metrics
}

func NewGuildLock(metrics *Metrics) *GuildLock {
	return &GuildLock{metrics: metrics}
}

func (l *GuildLock) Lock(guildID int64) {
	if _, loaded := l.locked.LoadOrStore(guildID, struct{}{}); !loaded {
		l.metrics.guildLocked(1)
	}
}

func (l *GuildLock) Unlock(guildID int64) {
	if _, loaded := l.locked.LoadAndDelete(guildID); loaded {
		l.metrics.guildLocked(-1)
	}
}

func (l *GuildLock) IsLocked(guildID int64) bool {
	_, ok := l.locked.Load(guildID)
	return ok
}

// Clear unlocks everything, for use on reconnect.
func (l *GuildLock) Clear() {
	l.locked.Range(func(id int64, _ struct{}) bool {
		l.Unlock(id)
		return true
	})
}
