package protocol

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// APIVersion is the greeter API version this module speaks
const APIVersion uint32 = 1

// Messages sent by the greeter
const (
	GreeterConnect uint32 = iota
	GreeterAuthenticate
	GreeterAuthenticateAsGuest
	GreeterContinueAuthentication
	GreeterStartSession
	GreeterCancelAuthentication
	GreeterSetLanguage
	GreeterAuthenticateRemote
	GreeterEnsureSharedDir
)

// Messages sent by the daemon
const (
	ServerConnected uint32 = iota
	ServerPromptAuthentication
	ServerEndAuthentication
	ServerSessionResult
	ServerSharedDirResult
	ServerIdle
	ServerReset
	ServerConnectedV2
)

// PromptStyle follows the PAM message styles
type PromptStyle uint32

const (
	StyleSecret   PromptStyle = 1 // PAM_PROMPT_ECHO_OFF
	StyleQuestion PromptStyle = 2 // PAM_PROMPT_ECHO_ON
	StyleError    PromptStyle = 3 // PAM_ERROR_MSG
	StyleInfo     PromptStyle = 4 // PAM_TEXT_INFO
)

// IsPrompt reports whether the style expects an answer
func (s PromptStyle) IsPrompt() bool {
	return s == StyleSecret || s == StyleQuestion
}

func (s PromptStyle) String() string {
	switch s {
	case StyleSecret:
		return "secret"
	case StyleQuestion:
		return "question"
	case StyleError:
		return "error"
	case StyleInfo:
		return "info"
	default:
		return fmt.Sprintf("style(%d)", uint32(s))
	}
}

// Message is anything that can be framed onto the wire
type Message interface {
	MessageID() uint32
	encode(w *writer)
}

// Encode frames m with its header
func Encode(m Message) []byte {
	w := &writer{buf: make([]byte, HeaderSize, 64)}
	m.encode(w)
	binary.BigEndian.PutUint32(w.buf[0:4], m.MessageID())
	binary.BigEndian.PutUint32(w.buf[4:8], uint32(len(w.buf)-HeaderSize)) //nolint:gosec // payloads are small
	return w.buf
}

// CheckSize reports ErrTooLarge when m does not fit in one frame
func CheckSize(m Message) error {
	if n := len(Encode(m)) - HeaderSize; n > MaxMessageLength {
		return fmt.Errorf("%w: message %d needs %d bytes", ErrTooLarge, m.MessageID(), n)
	}
	return nil
}

// Greeter to daemon

type Connect struct {
	Version    string
	Resettable bool
	APIVersion uint32
}

func (Connect) MessageID() uint32 { return GreeterConnect }
func (m Connect) encode(w *writer) {
	w.putString(m.Version)
	w.putBool(m.Resettable)
	w.putInt(m.APIVersion)
}

type Authenticate struct {
	Sequence uint32
	Username string
}

func (Authenticate) MessageID() uint32 { return GreeterAuthenticate }
func (m Authenticate) encode(w *writer) {
	w.putInt(m.Sequence)
	w.putString(m.Username)
}

type AuthenticateAsGuest struct {
	Sequence uint32
}

func (AuthenticateAsGuest) MessageID() uint32 { return GreeterAuthenticateAsGuest }
func (m AuthenticateAsGuest) encode(w *writer) {
	w.putInt(m.Sequence)
}

type ContinueAuthentication struct {
	Responses []string
}

func (ContinueAuthentication) MessageID() uint32 { return GreeterContinueAuthentication }
func (m ContinueAuthentication) encode(w *writer) {
	w.putInt(uint32(len(m.Responses))) //nolint:gosec // bounded by prompt count
	for _, r := range m.Responses {
		w.putString(r)
	}
}

type StartSession struct {
	Session string
}

func (StartSession) MessageID() uint32 { return GreeterStartSession }
func (m StartSession) encode(w *writer) {
	w.putString(m.Session)
}

type CancelAuthentication struct{}

func (CancelAuthentication) MessageID() uint32 { return GreeterCancelAuthentication }
func (CancelAuthentication) encode(*writer)    {}

type SetLanguage struct {
	Language string
}

func (SetLanguage) MessageID() uint32 { return GreeterSetLanguage }
func (m SetLanguage) encode(w *writer) {
	w.putString(m.Language)
}

type AuthenticateRemote struct {
	Sequence uint32
	Session  string
	Username string
}

func (AuthenticateRemote) MessageID() uint32 { return GreeterAuthenticateRemote }
func (m AuthenticateRemote) encode(w *writer) {
	w.putInt(m.Sequence)
	w.putString(m.Session)
	w.putString(m.Username)
}

type EnsureSharedDir struct {
	Username string
}

func (EnsureSharedDir) MessageID() uint32 { return GreeterEnsureSharedDir }
func (m EnsureSharedDir) encode(w *writer) {
	w.putString(m.Username)
}

// Daemon to greeter

// Connected answers Connect. Legacy selects the original CONNECTED layout,
// which carries no API version.
type Connected struct {
	Version    string
	APIVersion uint32
	Hints      map[string]string
	Legacy     bool
}

func (m Connected) MessageID() uint32 {
	if m.Legacy {
		return ServerConnected
	}
	return ServerConnectedV2
}

func (m Connected) encode(w *writer) {
	if m.Legacy {
		w.putString(m.Version)
		w.putHints(m.Hints)
		return
	}
	w.putInt(m.APIVersion)
	w.putString(m.Version)
	w.putInt(uint32(len(m.Hints))) //nolint:gosec // small map
	w.putHints(m.Hints)
}

// PromptMessage is one entry of a PAM conversation turn
type PromptMessage struct {
	Style PromptStyle
	Text  string
}

type PromptAuthentication struct {
	Sequence uint32
	Username string
	Messages []PromptMessage
}

func (PromptAuthentication) MessageID() uint32 { return ServerPromptAuthentication }
func (m PromptAuthentication) encode(w *writer) {
	w.putInt(m.Sequence)
	w.putString(m.Username)
	w.putInt(uint32(len(m.Messages))) //nolint:gosec // bounded by conversation size
	for _, msg := range m.Messages {
		w.putInt(uint32(msg.Style))
		w.putString(msg.Text)
	}
}

type EndAuthentication struct {
	Sequence   uint32
	Username   string
	ReturnCode uint32
}

func (EndAuthentication) MessageID() uint32 { return ServerEndAuthentication }
func (m EndAuthentication) encode(w *writer) {
	w.putInt(m.Sequence)
	w.putString(m.Username)
	w.putInt(m.ReturnCode)
}

type SessionResult struct {
	ReturnCode uint32
}

func (SessionResult) MessageID() uint32 { return ServerSessionResult }
func (m SessionResult) encode(w *writer) {
	w.putInt(m.ReturnCode)
}

// SharedDirResult carries the provisioned path, empty on failure
type SharedDirResult struct {
	Dir string
}

func (SharedDirResult) MessageID() uint32 { return ServerSharedDirResult }
func (m SharedDirResult) encode(w *writer) {
	w.putString(m.Dir)
}

type Idle struct{}

func (Idle) MessageID() uint32 { return ServerIdle }
func (Idle) encode(*writer)    {}

type Reset struct {
	Hints map[string]string
}

func (Reset) MessageID() uint32 { return ServerReset }
func (m Reset) encode(w *writer) {
	w.putHints(m.Hints)
}

// DecodeGreeterMessage decodes a frame sent by a greeter
func DecodeGreeterMessage(f Frame) (Message, error) {
	r := &reader{buf: f.Payload}
	var (
		msg Message
		err error
	)

	switch f.ID {
	case GreeterConnect:
		var m Connect
		if m.Version, err = r.string(); err != nil {
			break
		}
		// Very old greeters stop after the version string
		if r.remaining() == 0 {
			msg = m
			break
		}
		var resettable uint32
		if resettable, err = r.int(); err != nil {
			break
		}
		m.Resettable = resettable != 0
		if r.remaining() > 0 {
			if m.APIVersion, err = r.int(); err != nil {
				break
			}
		}
		msg = m
	case GreeterAuthenticate:
		var m Authenticate
		if m.Sequence, err = r.int(); err != nil {
			break
		}
		if m.Username, err = r.string(); err != nil {
			break
		}
		msg = m
	case GreeterAuthenticateAsGuest:
		var m AuthenticateAsGuest
		if m.Sequence, err = r.int(); err != nil {
			break
		}
		msg = m
	case GreeterContinueAuthentication:
		var m ContinueAuthentication
		if m.Responses, err = r.strings(); err != nil {
			break
		}
		msg = m
	case GreeterStartSession:
		var m StartSession
		if m.Session, err = r.string(); err != nil {
			break
		}
		msg = m
	case GreeterCancelAuthentication:
		msg = CancelAuthentication{}
	case GreeterSetLanguage:
		var m SetLanguage
		if m.Language, err = r.string(); err != nil {
			break
		}
		msg = m
	case GreeterAuthenticateRemote:
		var m AuthenticateRemote
		if m.Sequence, err = r.int(); err != nil {
			break
		}
		if m.Session, err = r.string(); err != nil {
			break
		}
		if m.Username, err = r.string(); err != nil {
			break
		}
		msg = m
	case GreeterEnsureSharedDir:
		var m EnsureSharedDir
		if m.Username, err = r.string(); err != nil {
			break
		}
		msg = m
	default:
		return nil, fmt.Errorf("%w: greeter message %d", ErrUnknownMessage, f.ID)
	}

	if err != nil {
		return nil, fmt.Errorf("decode greeter message %d: %w", f.ID, err)
	}
	return msg, nil
}

// DecodeServerMessage decodes a frame sent by the daemon
func DecodeServerMessage(f Frame) (Message, error) {
	r := &reader{buf: f.Payload}
	var (
		msg Message
		err error
	)

	switch f.ID {
	case ServerConnected:
		m := Connected{Legacy: true}
		if m.Version, err = r.string(); err != nil {
			break
		}
		if m.Hints, err = r.hintsToEnd(); err != nil {
			break
		}
		msg = m
	case ServerConnectedV2:
		var m Connected
		if m.APIVersion, err = r.int(); err != nil {
			break
		}
		if m.Version, err = r.string(); err != nil {
			break
		}
		if m.Hints, err = r.hintsCounted(); err != nil {
			break
		}
		msg = m
	case ServerPromptAuthentication:
		msg, err = decodePrompt(r)
	case ServerEndAuthentication:
		var m EndAuthentication
		if m.Sequence, err = r.int(); err != nil {
			break
		}
		if m.Username, err = r.string(); err != nil {
			break
		}
		if m.ReturnCode, err = r.int(); err != nil {
			break
		}
		msg = m
	case ServerSessionResult:
		var m SessionResult
		if m.ReturnCode, err = r.int(); err != nil {
			break
		}
		msg = m
	case ServerSharedDirResult:
		var m SharedDirResult
		if m.Dir, err = r.string(); err != nil {
			break
		}
		msg = m
	case ServerIdle:
		msg = Idle{}
	case ServerReset:
		var m Reset
		if m.Hints, err = r.hintsToEnd(); err != nil {
			break
		}
		msg = m
	default:
		return nil, fmt.Errorf("%w: server message %d", ErrUnknownMessage, f.ID)
	}

	if err != nil {
		return nil, fmt.Errorf("decode server message %d: %w", f.ID, err)
	}
	return msg, nil
}

func decodePrompt(r *reader) (Message, error) {
	var (
		m   PromptAuthentication
		err error
	)
	if m.Sequence, err = r.int(); err != nil {
		return nil, err
	}
	if m.Username, err = r.string(); err != nil {
		return nil, err
	}
	n, err := r.int()
	if err != nil {
		return nil, err
	}
	if uint64(n)*2*intLength > uint64(r.remaining()) {
		return nil, fmt.Errorf("%w: %d prompt messages do not fit", ErrMalformed, n)
	}
	m.Messages = make([]PromptMessage, 0, n)
	for i := uint32(0); i < n; i++ {
		style, err := r.int()
		if err != nil {
			return nil, err
		}
		text, err := r.string()
		if err != nil {
			return nil, err
		}
		m.Messages = append(m.Messages, PromptMessage{Style: PromptStyle(style), Text: text})
	}
	return m, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
