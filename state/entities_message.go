package state

import "time"

// EmbedType tags the closed set of embed variants.
type EmbedType string

const (
	EmbedTypeImage   EmbedType = "image"
	EmbedTypeVideo   EmbedType = "video"
	EmbedTypeLink    EmbedType = "link"
	EmbedTypeRich    EmbedType = "rich"
	EmbedTypeArticle EmbedType = "article"
	EmbedTypeUnknown EmbedType = ""
)

func EmbedTypeFromKey(key string) EmbedType {
	switch key {
	case "image", "video", "link", "rich", "article":
		return EmbedType(key)
	default:
		return EmbedTypeUnknown
	}
}

// Message is transient: built per incoming payload, never stored beyond its
// channel's own message cache.
type Message struct {
	ID          int64
	TextChannel *TextChannel
	Private     *PrivateChannel
	Author      *User
	Content     string
	Time        time.Time
	EditedTime  time.Time
	TTS         bool
	Pinned      bool
	Everyone    bool
	FromWebhook bool

	Attachments []*Attachment
	Embeds      []*Embed
	Reactions   []*MessageReaction

	// Mention lists are ordered by first textual occurrence in Content,
	// not by the order of the wire arrays.
	MentionedUsers    []*User
	MentionedRoles    []*Role
	MentionedChannels []*TextChannel
}

// GuildID returns the owning guild id, or 0 for private messages.
func (m *Message) GuildID() int64 {
	if m.TextChannel == nil {
		return 0
	}
	return m.TextChannel.Guild.ID
}

// ChannelID returns the id of the channel the message was sent in.
func (m *Message) ChannelID() int64 {
	if m.TextChannel != nil {
		return m.TextChannel.ID
	}
	if m.Private != nil {
		return m.Private.ID
	}
	return 0
}

type Attachment struct {
	ID       int64
	URL      string
	ProxyURL string
	Filename string
	Size     int
	Height   int
	Width    int
}

type Embed struct {
	Type        EmbedType
	URL         string
	Title       string
	Description string
	Color       *int
	Timestamp   time.Time

	Thumbnail *EmbedMedia
	Image     *EmbedMedia
	Video     *EmbedMedia
	Provider  *EmbedProvider
	Author    *EmbedAuthor
	Footer    *EmbedFooter
	Fields    []EmbedField
}

type EmbedMedia struct {
	URL      string
	ProxyURL string
	Width    int
	Height   int
}

type EmbedProvider struct {
	Name string
	URL  string
}

type EmbedAuthor struct {
	Name         string
	URL          string
	IconURL      string
	ProxyIconURL string
}

type EmbedFooter struct {
	Text         string
	IconURL      string
	ProxyIconURL string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// MessageReaction is a reaction tally on a message. The emote may be a
// guild emote or a plain unicode emoji (ID zero, Name set).
type MessageReaction struct {
	MessageID int64
	EmoteID   int64
	EmoteName string
	Count     int
	Self      bool
}
