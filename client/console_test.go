package client

import (
	"bytes"
	"chat-relay/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Command
		wantErr bool
	}{
		{name: "broadcast", line: "hello all", want: Command{Message: domain.Message{Kind: domain.KindMsg, Text: "hello all"}}},
		{name: "whisper", line: "/w bob  see you later ", want: Command{Message: domain.Message{Kind: domain.KindPM, To: "bob", Text: "see you later"}}},
		{name: "whisper without text", line: "/w bob", wantErr: true},
		{name: "who", line: "/who", want: Command{Who: true}},
		{name: "quit", line: " /quit ", want: Command{Quit: true, Message: domain.Message{Kind: domain.KindLeave}}},
		{name: "unknown command", line: "/dance now", wantErr: true},
		{name: "empty", line: "   ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRenderer_Render(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	renderer := NewRenderer(&out, false)
	at := time.Date(2024, 1, 1, 10, 30, 0, 0, time.Local).Unix()

	renderer.Render(domain.Message{Kind: domain.KindJoin, From: "bob", Timestamp: at})
	renderer.Render(domain.Message{Kind: domain.KindMsg, From: "bob", Text: "hi", Timestamp: at})
	renderer.Render(domain.Message{Kind: domain.KindPM, From: "bob", To: "alice", Text: "psst", Timestamp: at})
	renderer.Render(domain.Message{Kind: domain.KindSys, Text: "User 'carol' not found", Timestamp: at})
	renderer.Render(domain.Message{Kind: domain.KindLeave, From: "bob", Timestamp: at})
	renderer.Render(domain.Message{Kind: domain.KindUserList, Users: []string{"alice"}})

	req.Equal(
		"[10:30:00] * bob joined\n"+
			"[10:30:00] bob: hi\n"+
			"[10:30:00] bob -> alice: psst\n"+
			"[10:30:00] ! User 'carol' not found\n"+
			"[10:30:00] * bob left\n",
		out.String())
	req.Equal([]string{"alice"}, renderer.Users())
}

func TestRenderer_Roster(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	renderer := NewRenderer(&out, false)
	renderer.Render(domain.Message{Kind: domain.KindUserList, Users: []string{"alice", "bob"}})

	renderer.Roster()

	req.Contains(out.String(), "USERNAME")
	req.Contains(out.String(), "alice")
	req.Contains(out.String(), "bob")
}
