// Package codec converts chat messages to and from newline-delimited JSON frames.
//
// A frame is one JSON object on a single line. Encode never produces an
// embedded newline: the JSON encoder escapes control characters inside strings,
// and the writer appends the delimiter.
package codec

import (
	"bytes"
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// frame is the decoding shape. Older clients send "type", the protocol
// documentation says "kind"; both are accepted and "type" wins.
type frame struct {
	Type      domain.Kind `json:"type"`
	Kind      domain.Kind `json:"kind"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Text      string      `json:"text"`
	Users     []string    `json:"users"`
	Timestamp int64       `json:"ts"`
}

type joinFrame struct {
	From string `validate:"required"`
}

type directFrame struct {
	To   string `validate:"required"`
	Text string `validate:"required"`
}

type broadcastFrame struct {
	Text string `validate:"required"`
}

// Encode serializes a message as a single line without the trailing newline.
func Encode(m domain.Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind, err)
	}
	if bytes.IndexByte(b, '\n') >= 0 {
		return nil, fmt.Errorf("encode %s: embedded newline", m.Kind)
	}
	return b, nil
}

// Decode parses one line. It only fails on malformed JSON; required fields
// are checked by Validate so the caller decides what a missing field means.
func Decode(line []byte) (domain.Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return domain.Message{}, fmt.Errorf("%w: empty line", errors.ErrProtocol)
	}
	var f frame
	if err := json.Unmarshal(line, &f); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrProtocol, err)
	}
	kind := f.Type
	if kind == "" {
		kind = f.Kind
	}
	return domain.Message{
		Kind:      domain.Kind(strings.ToLower(strings.TrimSpace(string(kind)))),
		From:      strings.TrimSpace(f.From),
		To:        strings.TrimSpace(f.To),
		Text:      f.Text,
		Users:     f.Users,
		Timestamp: f.Timestamp,
	}, nil
}

// Validate checks the fields a client must provide for the message kind.
// Kinds without client requirements, unknown ones included, always pass.
func Validate(m domain.Message) error {
	var err error
	switch m.Kind {
	case domain.KindJoin:
		err = validate.Struct(joinFrame{From: m.From})
	case domain.KindMsg:
		err = validate.Struct(broadcastFrame{Text: m.Text})
	case domain.KindPM:
		err = validate.Struct(directFrame{To: m.To, Text: m.Text})
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrProtocol, m.Kind, err)
	}
	return nil
}

// DecodeHandshake parses the first line of a connection, which must be a
// join carrying a non-blank username.
func DecodeHandshake(line []byte) (domain.Message, error) {
	m, err := Decode(line)
	if err != nil {
		return domain.Message{}, err
	}
	if m.Kind != domain.KindJoin {
		return domain.Message{}, fmt.Errorf("%w: expected join, got %q", errors.ErrProtocol, m.Kind)
	}
	if err = Validate(m); err != nil {
		return domain.Message{}, err
	}
	return m, nil
}
