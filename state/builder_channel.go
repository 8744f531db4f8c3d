package state

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	wire "github.com/echotools/concord/protocol"
)

// CreateTextChannel upserts a guild text channel. With guildIsLoaded false
// (bootstrap first pass) the permission overrides are skipped; they need
// the complete member list and are built by the channel pass instead.
func (b *Builder) CreateTextChannel(payload *wire.Channel, guildID int64, guildIsLoaded bool) *TextChannel {
	id := payload.ID.Int64()
	channel := b.store.TextChannel(id)
	if channel == nil {
		guild := b.store.Guild(guildID)
		channel = &TextChannel{ID: id, Guild: guild, Overrides: make(map[int64]*PermissionOverride)}
		guild.TextChannels[id] = channel
		b.store.textChannels.Store(id, channel)
	}

	if guildIsLoaded && len(payload.Overwrites) > 0 {
		b.CreateOverridesPass(channel.Guild, channel.Overrides, payload.Overwrites)
	}

	channel.Name = payload.Name
	channel.Topic = payload.Topic
	channel.Position = payload.Position
	channel.ParentID = payload.ParentID.Int64()
	channel.NSFW = payload.NSFW
	channel.LastMessageID = payload.LastMsgID.Int64()
	return channel
}

// CreateVoiceChannel upserts a guild voice channel.
func (b *Builder) CreateVoiceChannel(payload *wire.Channel, guildID int64, guildIsLoaded bool) *VoiceChannel {
	id := payload.ID.Int64()
	channel := b.store.VoiceChannel(id)
	if channel == nil {
		guild := b.store.Guild(guildID)
		channel = &VoiceChannel{
			ID:        id,
			Guild:     guild,
			Overrides: make(map[int64]*PermissionOverride),
			Connected: make(map[int64]*Member),
		}
		guild.VoiceChannels[id] = channel
		b.store.voiceChannels.Store(id, channel)
	}

	if guildIsLoaded && len(payload.Overwrites) > 0 {
		b.CreateOverridesPass(channel.Guild, channel.Overrides, payload.Overwrites)
	}

	channel.Name = payload.Name
	channel.Position = payload.Position
	channel.ParentID = payload.ParentID.Int64()
	channel.UserLimit = payload.UserLimit
	channel.Bitrate = payload.Bitrate
	return channel
}

// CreateCategory upserts a channel category.
func (b *Builder) CreateCategory(payload *wire.Channel, guildID int64, guildIsLoaded bool) *Category {
	id := payload.ID.Int64()
	category := b.store.Category(id)
	if category == nil {
		guild := b.store.Guild(guildID)
		category = &Category{ID: id, Guild: guild, Overrides: make(map[int64]*PermissionOverride)}
		guild.Categories[id] = category
		b.store.categories.Store(id, category)
	}

	if guildIsLoaded && len(payload.Overwrites) > 0 {
		b.CreateOverridesPass(category.Guild, category.Overrides, payload.Overwrites)
	}

	category.Name = payload.Name
	category.Position = payload.Position
	return category
}

// CreatePrivateChannel builds a direct channel with a user. A recipient we
// can no longer communicate with yields a fake user and a fake private
// channel.
func (b *Builder) CreatePrivateChannel(payload *wire.Channel) *PrivateChannel {
	var recipient *wire.User
	if len(payload.Recipients) > 0 {
		recipient = &payload.Recipients[0]
	} else {
		b.logger.Error("Private channel payload without a recipient, skipping",
			zap.Int64("channel_id", payload.ID.Int64()))
		return nil
	}

	user := b.store.User(recipient.ID.Int64())
	if user == nil {
		user = b.CreateFakeUser(recipient, true)
	}

	id := payload.ID.Int64()
	priv := &PrivateChannel{
		ID:            id,
		User:          user,
		LastMessageID: payload.LastMsgID.Int64(),
	}
	user.PrivateChannel = priv

	if user.Fake {
		priv.Fake = true
		b.store.fakePrivateChannels.Store(id, priv)
	} else {
		b.store.privateChannels.Store(id, priv)
	}
	return priv
}

// CreateOverridesPass builds a batch of permission overrides into the
// given channel override map. Failures are per override, not per pass: an
// override whose member or role has since gone away is logged and skipped
// while the rest of the batch still applies. The upstream service is known
// to leave such stale overrides behind.
func (b *Builder) CreateOverridesPass(guild *Guild, overrides map[int64]*PermissionOverride, payloads []wire.Overwrite) {
	for i := range payloads {
		if err := b.createPermissionOverride(guild, overrides, &payloads[i]); err != nil {
			switch {
			case errors.Is(err, errStaleOverride):
				b.logger.Debug("Ignoring stale permission override", zap.Error(err))
			case errors.Is(err, errUnknownOverride):
				b.logger.Warn("Ignoring permission override of unknown type", zap.Error(err))
			default:
				b.logger.Warn("Ignoring permission override", zap.Error(err))
			}
		}
	}
}

func (b *Builder) createPermissionOverride(guild *Guild, overrides map[int64]*PermissionOverride, payload *wire.Overwrite) error {
	id := payload.ID.Int64()

	var override *PermissionOverride
	switch payload.Type {
	case wire.OverwriteTypeMember:
		member, ok := guild.Members[id]
		if !ok {
			return fmt.Errorf("%w: member %d in guild %d", errStaleOverride, id, guild.ID)
		}
		override = overrides[id]
		if override == nil {
			override = &PermissionOverride{TargetID: id, Member: member}
			overrides[id] = override
		}
	case wire.OverwriteTypeRole:
		role, ok := guild.Roles[id]
		if !ok {
			return fmt.Errorf("%w: role %d in guild %d", errStaleOverride, id, guild.ID)
		}
		override = overrides[id]
		if override == nil {
			override = &PermissionOverride{TargetID: id, Role: role}
			overrides[id] = override
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownOverride, payload.Type)
	}

	override.Allow = payload.Allow
	override.Deny = payload.Deny
	return nil
}
