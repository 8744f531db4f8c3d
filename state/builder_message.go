package state

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
)

var channelMentionPattern = regexp.MustCompile(`<#(\d+)>`)

// CreateMessage builds a transient message entity from its payload.
//
// The channel must already be cached; otherwise ErrMissingChannel is
// returned for the caller to defer on. With strictAuthor set (live message
// creation) an unresolvable author in a guild channel yields
// ErrMissingUser; otherwise a fake author is built in its place.
func (b *Builder) CreateMessage(payload *wire.Message, strictAuthor bool) (*Message, error) {
	channelID := payload.ChannelID.Int64()

	var textChannel *TextChannel
	var private *PrivateChannel
	if textChannel = b.store.TextChannel(channelID); textChannel == nil {
		if private = b.store.PrivateChannel(channelID); private == nil {
			private = b.store.FakePrivateChannel(channelID)
		}
	}
	if textChannel == nil && private == nil {
		return nil, fmt.Errorf("%w: channel %d", ErrMissingChannel, channelID)
	}

	msg := &Message{
		ID:          payload.ID.Int64(),
		TextChannel: textChannel,
		Private:     private,
		Content:     payload.Content,
		TTS:         payload.TTS,
		Pinned:      payload.Pinned,
		Everyone:    payload.MentionEveryone,
		FromWebhook: payload.WebhookID != 0,
	}
	msg.Time = parseTimestamp(payload.Timestamp, time.Now())
	if payload.EditedTimestamp != "" {
		msg.EditedTime = parseTimestamp(payload.EditedTimestamp, time.Time{})
	}

	author, err := b.resolveMessageAuthor(msg, &payload.Author, strictAuthor)
	if err != nil {
		return nil, err
	}
	msg.Author = author

	for i := range payload.Attachments {
		a := &payload.Attachments[i]
		msg.Attachments = append(msg.Attachments, &Attachment{
			ID:       a.ID.Int64(),
			URL:      a.URL,
			ProxyURL: a.ProxyURL,
			Filename: a.Filename,
			Size:     a.Size,
			Height:   a.Height,
			Width:    a.Width,
		})
	}

	for i := range payload.Embeds {
		embed, err := b.CreateEmbed(&payload.Embeds[i])
		if err != nil {
			b.logger.Error("Skipping embed", zap.Int64("message_id", msg.ID), zap.Error(err))
			continue
		}
		msg.Embeds = append(msg.Embeds, embed)
	}

	for i := range payload.Reactions {
		msg.Reactions = append(msg.Reactions, b.createReaction(msg, &payload.Reactions[i]))
	}

	if textChannel != nil {
		b.orderMentions(msg, payload)
	}

	return msg, nil
}

func (b *Builder) resolveMessageAuthor(msg *Message, author *wire.User, strictAuthor bool) (*User, error) {
	authorID := author.ID.Int64()

	if msg.Private != nil {
		if self := b.store.SelfUser(); self != nil && authorID == self.ID {
			return &self.User, nil
		}
		return msg.Private.User, nil
	}

	member := msg.TextChannel.Guild.Members[authorID]
	if member != nil {
		return member.User, nil
	}
	if msg.FromWebhook || !strictAuthor {
		return b.CreateFakeUser(author, false), nil
	}
	return nil, fmt.Errorf("%w: author %d", ErrMissingUser, authorID)
}

func (b *Builder) createReaction(msg *Message, payload *wire.Reaction) *MessageReaction {
	reaction := &MessageReaction{
		MessageID: msg.ID,
		EmoteID:   payload.Emoji.ID.Int64(),
		EmoteName: payload.Emoji.Name,
		Count:     payload.Count,
		Self:      payload.Self,
	}
	if reaction.EmoteID != 0 && msg.TextChannel != nil {
		if emote, ok := msg.TextChannel.Guild.Emotes[reaction.EmoteID]; ok {
			reaction.EmoteName = emote.Name
		}
	}
	return reaction
}

// orderMentions reconstructs the user and role mention lists in textual
// order. The wire arrays are not guaranteed to match the order the mentions
// appear in the content, so each mention is keyed by the first index of its
// canonical marker token; duplicates collapse to their first-seen position.
// Channel mentions are not delivered as an array at all and are instead
// scanned out of the content, resolved against the guild's channel map in
// first-occurrence order, de-duplicated.
func (b *Builder) orderMentions(msg *Message, payload *wire.Message) {
	guild := msg.TextChannel.Guild
	content := msg.Content

	usersByIndex := make(map[int]*User, len(payload.Mentions))
	for i := range payload.Mentions {
		mention := &payload.Mentions[i]
		user := b.store.AnyUser(mention.ID.Int64())
		if user == nil {
			continue
		}
		token := strconv.FormatInt(user.ID, 10)
		index := strings.Index(content, "<@"+token+">")
		if index < 0 {
			index = strings.Index(content, "<@!"+token+">")
		}
		if _, ok := usersByIndex[index]; !ok {
			usersByIndex[index] = user
		}
	}
	msg.MentionedUsers = valuesInIndexOrder(usersByIndex)

	rolesByIndex := make(map[int]*Role, len(payload.MentionRoles))
	for _, roleID := range payload.MentionRoles {
		role, ok := guild.Roles[roleID.Int64()]
		if !ok {
			continue
		}
		index := strings.Index(content, "<@&"+strconv.FormatInt(role.ID, 10)+">")
		if _, ok := rolesByIndex[index]; !ok {
			rolesByIndex[index] = role
		}
	}
	msg.MentionedRoles = valuesInIndexOrder(rolesByIndex)

	seen := make(map[int64]struct{})
	for _, match := range channelMentionPattern.FindAllStringSubmatch(content, -1) {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		channel, ok := guild.TextChannels[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		msg.MentionedChannels = append(msg.MentionedChannels, channel)
	}
}

// valuesInIndexOrder flattens an index-keyed mention map into a slice
// sorted by character index. A missing marker token indexes at -1 and
// therefore sorts first, matching how unmatched mentions have always been
// surfaced.
func valuesInIndexOrder[V any](byIndex map[int]V) []V {
	indexes := lo.Keys(byIndex)
	sort.Ints(indexes)
	out := make([]V, 0, len(indexes))
	for _, index := range indexes {
		out = append(out, byIndex[index])
	}
	return out
}

// CreateEmbed builds an embed. A payload with a missing or unrecognized
// type tag is rejected; the caller logs and skips it.
func (b *Builder) CreateEmbed(payload *wire.Embed) (*Embed, error) {
	embedType := EmbedTypeFromKey(payload.Type)
	if embedType == EmbedTypeUnknown {
		return nil, fmt.Errorf("unknown embed type %q", payload.Type)
	}

	embed := &Embed{
		Type:        embedType,
		URL:         payload.URL,
		Title:       payload.Title,
		Description: payload.Description,
	}
	if payload.Color != 0 {
		color := payload.Color
		embed.Color = &color
	}
	if payload.Timestamp != "" {
		embed.Timestamp = parseTimestamp(payload.Timestamp, time.Time{})
	}
	if payload.Thumbnail != nil {
		embed.Thumbnail = &EmbedMedia{
			URL:      payload.Thumbnail.URL,
			ProxyURL: payload.Thumbnail.ProxyURL,
			Width:    payload.Thumbnail.Width,
			Height:   payload.Thumbnail.Height,
		}
	}
	if payload.Image != nil {
		embed.Image = &EmbedMedia{
			URL:      payload.Image.URL,
			ProxyURL: payload.Image.ProxyURL,
			Width:    payload.Image.Width,
			Height:   payload.Image.Height,
		}
	}
	if payload.Video != nil {
		embed.Video = &EmbedMedia{
			URL:    payload.Video.URL,
			Width:  payload.Video.Width,
			Height: payload.Video.Height,
		}
	}
	if payload.Provider != nil {
		embed.Provider = &EmbedProvider{Name: payload.Provider.Name, URL: payload.Provider.URL}
	}
	if payload.Author != nil {
		embed.Author = &EmbedAuthor{
			Name:         payload.Author.Name,
			URL:          payload.Author.URL,
			IconURL:      payload.Author.IconURL,
			ProxyIconURL: payload.Author.ProxyIconURL,
		}
	}
	if payload.Footer != nil {
		embed.Footer = &EmbedFooter{
			Text:         payload.Footer.Text,
			IconURL:      payload.Footer.IconURL,
			ProxyIconURL: payload.Footer.ProxyIconURL,
		}
	}
	for _, field := range payload.Fields {
		embed.Fields = append(embed.Fields, EmbedField{
			Name:   field.Name,
			Value:  field.Value,
			Inline: field.Inline,
		})
	}
	return embed, nil
}

func parseTimestamp(raw string, fallback time.Time) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fallback
	}
	return t
}
