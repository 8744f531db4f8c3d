package wire

// Message is the MESSAGE_CREATE / MESSAGE_UPDATE payload.
type Message struct {
	ID              Snowflake    `json:"id"`
	ChannelID       Snowflake    `json:"channel_id"`
	Author          User         `json:"author"`
	Content         string       `json:"content"`
	Timestamp       string       `json:"timestamp"`
	EditedTimestamp string       `json:"edited_timestamp"`
	TTS             bool         `json:"tts"`
	Pinned          bool         `json:"pinned"`
	MentionEveryone bool         `json:"mention_everyone"`
	WebhookID       Snowflake    `json:"webhook_id"`
	Mentions        []User       `json:"mentions"`
	MentionRoles    []Snowflake  `json:"mention_roles"`
	Attachments     []Attachment `json:"attachments"`
	Embeds          []Embed      `json:"embeds"`
	Reactions       []Reaction   `json:"reactions"`
}

type Attachment struct {
	ID       Snowflake `json:"id"`
	URL      string    `json:"url"`
	ProxyURL string    `json:"proxy_url"`
	Filename string    `json:"filename"`
	Size     int       `json:"size"`
	Height   int       `json:"height"`
	Width    int       `json:"width"`
}

type Embed struct {
	Type        string         `json:"type"`
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Thumbnail   *EmbedMedia    `json:"thumbnail"`
	Image       *EmbedMedia    `json:"image"`
	Video       *EmbedMedia    `json:"video"`
	Provider    *EmbedProvider `json:"provider"`
	Author      *EmbedAuthor   `json:"author"`
	Footer      *EmbedFooter   `json:"footer"`
	Fields      []EmbedField   `json:"fields"`
}

type EmbedMedia struct {
	URL      string `json:"url"`
	ProxyURL string `json:"proxy_url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type EmbedProvider struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type EmbedAuthor struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	IconURL      string `json:"icon_url"`
	ProxyIconURL string `json:"proxy_icon_url"`
}

type EmbedFooter struct {
	Text         string `json:"text"`
	IconURL      string `json:"icon_url"`
	ProxyIconURL string `json:"proxy_icon_url"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type Reaction struct {
	Count int           `json:"count"`
	Self  bool          `json:"self"`
	Emoji ReactionEmoji `json:"emoji"`
}

type ReactionEmoji struct {
	ID   Snowflake `json:"id"`
	Name string    `json:"name"`
}

// MessageDelete is the single-item deletion payload. Bulk deletions are
// split into these when bulk-delete splitting is enabled.
type MessageDelete struct {
	ID        Snowflake `json:"id"`
	ChannelID Snowflake `json:"channel_id"`
}

// MessageDeleteBulk carries the ordered id set of a batch deletion.
type MessageDeleteBulk struct {
	ChannelID Snowflake   `json:"channel_id"`
	IDs       []Snowflake `json:"ids"`
}
