package discord

import (
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker decides whether a member may control playback. The DJ
// role can be changed at runtime.
type PermissionChecker struct {
	mu       sync.RWMutex
	djRoleID string
}

// NewPermissionChecker creates a PermissionChecker with the given DJ role ID.
func NewPermissionChecker(djRoleID string) *PermissionChecker {
	return &PermissionChecker{djRoleID: djRoleID}
}

// SetRole replaces the DJ role. An empty ID lets everyone control playback.
func (p *PermissionChecker) SetRole(djRoleID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.djRoleID = djRoleID
}

// Role returns the current DJ role ID.
func (p *PermissionChecker) Role() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.djRoleID
}

// IsDJ checks whether the interaction author has the configured DJ role.
// If no role is configured, everyone is a DJ. Returns false if the
// interaction has no Member (e.g., DM channel interactions) while a role is
// required.
func (p *PermissionChecker) IsDJ(i *discordgo.InteractionCreate) bool {
	role := p.Role()
	if role == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, role)
}
