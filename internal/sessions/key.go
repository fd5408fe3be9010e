// Package sessions builds the subject keys conversation memory is stored under.
//
// Keys follow one canonical format:
//
//	agent:{persona}:{rest}
//
// Where {rest} depends on the conversation:
//
//	DM:        {channel}:direct:{userId}
//	Group:     {channel}:group:{groupId}
//	Anonymous: anon:{personaId}
//
// Memory subjects scope {channel} to the bot, as {channel}:{destination}.
//
// Examples:
//
//	agent:Waibon:line:U0bot:direct:U4af4980629
//	agent:Zeta:line:group:C1a2b3c4
//	agent:Waibe:anon:0191e5f2-7a9c-7b3e-9c52-5c6f3a1d2e4f
package sessions

import (
	"fmt"
	"strings"
)

// PeerKind distinguishes DM from group conversations.
type PeerKind string

const (
	PeerDirect PeerKind = "direct"
	PeerGroup  PeerKind = "group"
)

// BuildSessionKey builds the canonical key for a channel conversation.
//
//	DM:    agent:{persona}:{channel}:direct:{peerID}
//	Group: agent:{persona}:{channel}:group:{chatID}
func BuildSessionKey(persona, channel string, kind PeerKind, chatID string) string {
	return fmt.Sprintf("agent:%s:%s:%s:%s", persona, channel, kind, chatID)
}

// BuildSubjectKey is the memory subject for a persona talking to one user
// through one channel destination. Memory is per user even inside groups.
// Without a user id the key falls back to the persona's anonymous subject.
//
//	agent:{persona}:{channel}:{destination}:direct:{userID}
func BuildSubjectKey(persona, channel, destination, userID, personaID string) string {
	if userID == "" {
		return BuildAnonSubjectKey(persona, personaID)
	}
	if destination != "" {
		channel = channel + ":" + destination
	}
	return BuildSessionKey(persona, channel, PeerDirect, userID)
}

// BuildAnonSubjectKey is the memory subject when no user is known.
//
//	agent:{persona}:anon:{personaID}
func BuildAnonSubjectKey(persona, personaID string) string {
	return fmt.Sprintf("agent:%s:anon:%s", persona, personaID)
}

// ParseSessionKey extracts the persona and rest from a canonical key.
// Returns ("", "") if the key is not in the expected format.
func ParseSessionKey(key string) (persona, rest string) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || parts[0] != "agent" {
		return "", ""
	}
	return parts[1], parts[2]
}

// IsAnonSession reports whether key is an anonymous subject.
func IsAnonSession(key string) bool {
	_, rest := ParseSessionKey(key)
	return strings.HasPrefix(rest, "anon:")
}

// PeerKindFromGroup returns PeerGroup if isGroup is true, PeerDirect otherwise.
func PeerKindFromGroup(isGroup bool) PeerKind {
	if isGroup {
		return PeerGroup
	}
	return PeerDirect
}
