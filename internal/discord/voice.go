package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

// VoiceLocator finds the voice channel a member is connected to.
type VoiceLocator interface {
	// VoiceChannel returns the member's voice channel in guildID, or "" when
	// the member is not in voice.
	VoiceChannel(guildID, userID string) (string, error)
}

// StateLocator answers from discordgo's state cache, which is kept current
// by VoiceStateUpdate events when the GuildVoiceStates intent is enabled.
type StateLocator struct {
	State *discordgo.State
}

var _ VoiceLocator = StateLocator{}

// VoiceChannel implements [VoiceLocator].
func (l StateLocator) VoiceChannel(guildID, userID string) (string, error) {
	vs, err := l.State.VoiceState(guildID, userID)
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if vs == nil {
		return "", nil
	}
	return vs.ChannelID, nil
}

// InteractionUserID extracts the user ID from an interaction, handling
// both guild (Member) and DM (User) contexts.
func InteractionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
