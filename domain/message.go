// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// The server stamps From and Timestamp; clients never decide them.
package domain

import "time"

type Kind string

const (
	KindJoin     Kind = "join"
	KindLeave    Kind = "leave"
	KindMsg      Kind = "msg"
	KindPM       Kind = "pm"
	KindUserList Kind = "userlist"
	KindSys      Kind = "sys"
)

// Known reports whether the kind is part of the protocol.
// Unknown kinds are still valid frames, the router just ignores them.
func (k Kind) Known() bool {
	switch k {
	case KindJoin, KindLeave, KindMsg, KindPM, KindUserList, KindSys:
		return true
	default:
		return false
	}
}

// Message represents one chat record exchanged on the wire.
type Message struct {
	Kind      Kind     `json:"type"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
	Text      string   `json:"text,omitempty"`
	Users     []string `json:"users,omitempty"`
	Timestamp int64    `json:"ts,omitempty"`
}

// Stamp overwrites the sender and the dispatch time.
func (m Message) Stamp(from string, at time.Time) Message {
	m.From = from
	m.Timestamp = at.Unix()
	return m
}

func NewSys(text string, at time.Time) Message {
	return Message{Kind: KindSys, Text: text, Timestamp: at.Unix()}
}

func NewUserList(users []string, at time.Time) Message {
	return Message{Kind: KindUserList, Users: users, Timestamp: at.Unix()}
}

func NewPresence(kind Kind, username string, at time.Time) Message {
	return Message{Kind: kind, From: username, Timestamp: at.Unix()}
}
