package state

// Dispatcher receives fully materialized entities once an event has
// resolved, with the sequence number the transport assigned to the
// originating frame. Synthetic events replayed through the pipeline carry
// their original sequence number.
type Dispatcher interface {
	Dispatch(event any)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(event any)

func (f DispatcherFunc) Dispatch(event any) { f(event) }

// ReadyEvent fires once the initial handshake completes and every promised
// guild has bootstrapped.
type ReadyEvent struct {
	Seq  int64
	Self *SelfUser
}

// GuildJoinEvent fires when the account joins a guild after the handshake.
type GuildJoinEvent struct {
	Seq   int64
	Guild *Guild
}

// GuildAvailableEvent fires when a previously unavailable guild finishes
// bootstrapping.
type GuildAvailableEvent struct {
	Seq   int64
	Guild *Guild
}

// GuildUnavailableEvent fires when a guild drops into an outage.
type GuildUnavailableEvent struct {
	Seq   int64
	Guild *Guild
}

// GuildLeaveEvent fires when the account is removed from a guild.
type GuildLeaveEvent struct {
	Seq   int64
	Guild *Guild
}

type MessageCreateEvent struct {
	Seq     int64
	Message *Message
}

type MessageDeleteEvent struct {
	Seq       int64
	ChannelID int64
	MessageID int64
}

// MessageBulkDeleteEvent carries the aggregate form of a batch deletion.
// With bulk-delete splitting enabled this event never fires; each id is
// replayed as its own MessageDeleteEvent instead.
type MessageBulkDeleteEvent struct {
	Seq        int64
	Channel    *TextChannel
	MessageIDs []int64
}

// PresenceUpdateEvent fires for either a guild member or a friend; exactly
// one of the two fields is set.
type PresenceUpdateEvent struct {
	Seq    int64
	Member *Member
	Friend *Relationship
}

type VoiceStateUpdateEvent struct {
	Seq        int64
	VoiceState *VoiceState
}
