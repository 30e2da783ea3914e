package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Purpose discriminates election traffic from anything else sharing the channel.
type Purpose string

const (
	PurposeLeader Purpose = "leader"
)

// Action is the intent carried by an election message.
type Action string

const (
	// ActionApply is a candidacy bid.
	ActionApply Action = "apply"
	// ActionAnnounce tells contenders that a leader already exists.
	ActionAnnounce Action = "announce"
	// ActionDepart is sent once by a participant that leaves the election.
	ActionDepart Action = "depart"
)

var ErrMalformedMessage = errors.New("malformed election message")

// Message is the only frame exchanged between participants.
type Message struct {
	Purpose Purpose `json:"purpose"`
	Action  Action  `json:"action"`
	Token   string  `json:"token"`
}

// NewMessage builds a leader-purpose message for the given sender token.
func NewMessage(action Action, token string) Message {
	return Message{
		Purpose: PurposeLeader,
		Action:  action,
		Token:   token,
	}
}

// IsElection reports whether the message belongs to the leader election.
func (m Message) IsElection() bool {
	return m.Purpose == PurposeLeader
}

// Validate checks that the action is known and the token is present.
func (m Message) Validate() error {
	switch m.Action {
	case ActionApply, ActionAnnounce, ActionDepart:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrMalformedMessage, m.Action)
	}
	if m.Token == "" {
		return fmt.Errorf("%w: empty token", ErrMalformedMessage)
	}
	return nil
}

// Encode serializes a message for network transports.
func Encode(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return payload, nil
}

// Decode parses a network frame. Frames of another purpose decode fine and are
// left to the subscriber to ignore.
func Decode(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.IsElection() {
		if err := m.Validate(); err != nil {
			return Message{}, err
		}
	}
	return m, nil
}
