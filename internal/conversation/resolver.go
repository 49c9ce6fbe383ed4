// Package conversation maps group and inner-group identifiers onto the storage
// locations that hold a conversation's messages and metadata.
package conversation

import (
	"errors"
	"strings"
)

// Scope distinguishes top-level group conversations from inner-group chats.
type Scope string

const (
	// ScopeGroup is the conversation of a top-level group.
	ScopeGroup Scope = "group"
	// ScopeChat is the conversation of an inner group, keyed by group and inner group.
	ScopeChat Scope = "chat"
)

const (
	groupRoot = "groups"
	chatRoot  = "chats"
	separator = "_"
)

// ErrGroupRequired is returned when no group identifier is supplied.
var ErrGroupRequired = errors.New("group id is required")

// Location is the resolved storage address of a conversation.
type Location struct {
	Scope        Scope  `json:"scope"`
	Key          string `json:"key"`
	GroupID      string `json:"group_id"`
	InnerGroupID string `json:"inner_group_id,omitempty"`
	MessagesPath string `json:"messages_path"`
	MetadataPath string `json:"metadata_path"`
}

// IsChat reports whether the location belongs to an inner group.
func (l Location) IsChat() bool {
	return l.Scope == ScopeChat
}

// Key builds the conversation key. Components are joined verbatim with a
// single underscore; no escaping is applied.
func Key(groupID, innerGroupID string) string {
	if innerGroupID == "" {
		return groupID
	}
	return groupID + separator + innerGroupID
}

// Resolve returns the storage location for the given group and optional inner group.
func Resolve(groupID, innerGroupID string) (Location, error) {
	groupID = strings.TrimSpace(groupID)
	innerGroupID = strings.TrimSpace(innerGroupID)
	if groupID == "" {
		return Location{}, ErrGroupRequired
	}

	key := Key(groupID, innerGroupID)
	if innerGroupID == "" {
		return Location{
			Scope:        ScopeGroup,
			Key:          key,
			GroupID:      groupID,
			MessagesPath: groupRoot + "/" + key + "/messages",
			MetadataPath: groupRoot + "/" + key,
		}, nil
	}

	return Location{
		Scope:        ScopeChat,
		Key:          key,
		GroupID:      groupID,
		InnerGroupID: innerGroupID,
		MessagesPath: chatRoot + "/" + key + "/messages",
		MetadataPath: chatRoot + "/" + key,
	}, nil
}

// MustResolve is Resolve for callers holding ids that were already validated.
func MustResolve(groupID, innerGroupID string) Location {
	loc, err := Resolve(groupID, innerGroupID)
	if err != nil {
		panic(err)
	}
	return loc
}
