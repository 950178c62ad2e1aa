package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeConnectWireLayout(t *testing.T) {
	data := Encode(Connect{Version: "1.32.0", Resettable: true, APIVersion: APIVersion})

	want := []byte{
		0, 0, 0, 0, // id
		0, 0, 0, 18, // payload length
		0, 0, 0, 6, '1', '.', '3', '2', '.', '0',
		0, 0, 0, 1, // resettable
		0, 0, 0, 1, // api version
	}
	assert.Equal(t, want, data)
}

func TestReadFrameAndDecode(t *testing.T) {
	tests := []struct {
		name   string
		msg    Message
		decode func(Frame) (Message, error)
	}{
		{
			name:   "prompt with mixed styles",
			msg:    PromptAuthentication{Sequence: 3, Username: "bob", Messages: []PromptMessage{{StyleInfo, "Welcome"}, {StyleSecret, "Password:"}}},
			decode: DecodeServerMessage,
		},
		{
			name:   "connected v2 with hints",
			msg:    Connected{Version: "1.32.0", APIVersion: 1, Hints: map[string]string{"default-session": "xfce", "has-guest-account": "true"}},
			decode: DecodeServerMessage,
		},
		{
			name:   "legacy connected",
			msg:    Connected{Version: "1.10.0", Legacy: true, Hints: map[string]string{"autologin-user": "alice"}},
			decode: DecodeServerMessage,
		},
		{
			name:   "continue with empty answer",
			msg:    ContinueAuthentication{Responses: []string{"secret", ""}},
			decode: DecodeGreeterMessage,
		},
		{
			name:   "remote authentication",
			msg:    AuthenticateRemote{Sequence: 9, Session: "vnc", Username: ""},
			decode: DecodeGreeterMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ReadFrame(bytes.NewReader(Encode(tt.msg)))
			require.NoError(t, err)
			assert.Equal(t, tt.msg.MessageID(), frame.ID)

			got, err := tt.decode(frame)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestDecodeLegacyConnectWithoutAPIVersion(t *testing.T) {
	w := &writer{}
	w.putString("1.4.0")

	msg, err := DecodeGreeterMessage(Frame{ID: GreeterConnect, Payload: w.buf})
	require.NoError(t, err)

	connect, ok := msg.(Connect)
	require.True(t, ok)
	assert.Equal(t, "1.4.0", connect.Version)
	assert.Zero(t, connect.APIVersion)
	assert.False(t, connect.Resettable)
}

func TestDecodeTruncatedPayload(t *testing.T) {
	full := Encode(EndAuthentication{Sequence: 1, Username: "bob", ReturnCode: 0})
	payload := full[HeaderSize : len(full)-2]

	_, err := DecodeServerMessage(Frame{ID: ServerEndAuthentication, Payload: payload})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeRejectsOversizedCounts(t *testing.T) {
	w := &writer{}
	w.putInt(1)
	w.putString("bob")
	w.putInt(1 << 30)

	_, err := DecodeServerMessage(Frame{ID: ServerPromptAuthentication, Payload: w.buf})
	assert.ErrorIs(t, err, ErrMalformed)

	w = &writer{}
	w.putInt(1 << 30)
	_, err = DecodeGreeterMessage(Frame{ID: GreeterContinueAuthentication, Payload: w.buf})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeUnknownMessage(t *testing.T) {
	_, err := DecodeServerMessage(Frame{ID: 42})
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = DecodeGreeterMessage(Frame{ID: 42})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestReadFrameTooLarge(t *testing.T) {
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], ServerIdle)
	binary.BigEndian.PutUint32(header[4:8], MaxMessageLength+1)

	_, err := ReadFrame(bytes.NewReader(header[:]))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestPromptStyle(t *testing.T) {
	assert.True(t, StyleSecret.IsPrompt())
	assert.True(t, StyleQuestion.IsPrompt())
	assert.False(t, StyleInfo.IsPrompt())
	assert.False(t, StyleError.IsPrompt())
	assert.Equal(t, "style(9)", PromptStyle(9).String())
}

func TestCheckSize(t *testing.T) {
	assert.NoError(t, CheckSize(SetLanguage{Language: "de_DE.UTF-8"}))

	// Four bytes of length prefix push this one over
	limit := SetLanguage{Language: strings.Repeat("x", MaxMessageLength-4)}
	assert.NoError(t, CheckSize(limit))

	over := SetLanguage{Language: strings.Repeat("x", MaxMessageLength-3)}
	assert.ErrorIs(t, CheckSize(over), ErrTooLarge)
}
