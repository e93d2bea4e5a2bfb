package domain

import (
	"encoding/json"
	"strings"
)

// ChannelGateEntry is one force-join requirement. At least one of ChatID or
// Invite must be derivable into a queryable handle, otherwise the channel is
// always reported as not joined.
type ChannelGateEntry struct {
	ChatID      string `json:"chat_id,omitempty"`
	Invite      string `json:"invite,omitempty"`
	JoinBtnText string `json:"join_btn_text,omitempty"`
}

// UnmarshalJSON accepts both the object form and the legacy bare-string form
// ("@channel", "-100123...", "https://t.me/...") found in older exports.
func (c *ChannelGateEntry) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*c = NormalizeChannelInput(raw)
		return nil
	}

	type plain ChannelGateEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = ChannelGateEntry(p)
	return nil
}

// NormalizeChannelInput turns free-form owner input into a gate entry:
// URLs become invite links, everything else is treated as a chat identifier.
func NormalizeChannelInput(raw string) ChannelGateEntry {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		return ChannelGateEntry{Invite: text}
	}
	return ChannelGateEntry{ChatID: text}
}

// QueryHandle derives a handle usable for a membership lookup: the explicit
// chat identifier as-is, or the invite URL's last path segment prefixed with
// "@". Private-invite tokens (joinchat links and "+" hashes) are not
// queryable and yield no handle.
func (c ChannelGateEntry) QueryHandle() (string, bool) {
	if c.ChatID != "" {
		return c.ChatID, true
	}

	invite := strings.TrimRight(c.Invite, "/")
	if invite == "" || !strings.Contains(invite, "t.me/") {
		return "", false
	}

	parts := strings.Split(invite, "/")
	last := parts[len(parts)-1]
	if last == "" {
		return "", false
	}

	lower := strings.ToLower(last)
	if strings.HasPrefix(lower, "joinchat") || strings.HasPrefix(lower, "+") {
		return "", false
	}

	if strings.HasPrefix(last, "@") {
		return last, true
	}
	return "@" + last, true
}

// Key identifies the entry for set-union merging: the chat identifier when
// present, otherwise the invite link.
func (c ChannelGateEntry) Key() string {
	if c.ChatID != "" {
		return c.ChatID
	}
	return c.Invite
}

// Label returns the entry's display name for owner-facing lists.
func (c ChannelGateEntry) Label() string {
	if key := c.Key(); key != "" {
		return key
	}
	return "(empty entry)"
}

// JoinURL returns the URL a join button should open, when one exists.
func (c ChannelGateEntry) JoinURL() (string, bool) {
	if c.Invite != "" {
		return c.Invite, true
	}
	if strings.HasPrefix(c.ChatID, "@") {
		return "https://t.me/" + strings.TrimPrefix(c.ChatID, "@"), true
	}
	return "", false
}
