//go:build pam

package daemon

import (
	"context"
	"fmt"

	"github.com/msteinert/pam"

	"github.com/bnema/lightgreet/internal/protocol"
)

// PAMSupported reports whether this binary was built with PAM
const PAMSupported = true

// PAMAuthenticator runs a real PAM transaction for the given service
type PAMAuthenticator struct {
	Service string
}

// NewPAMAuthenticator uses service, "lightdm" when empty
func NewPAMAuthenticator(service string) (*PAMAuthenticator, error) {
	if service == "" {
		service = "lightdm"
	}
	return &PAMAuthenticator{Service: service}, nil
}

func (a *PAMAuthenticator) Authenticate(ctx context.Context, username string, conv Conversation) (string, error) {
	tx, err := pam.StartFunc(a.Service, username, func(style pam.Style, msg string) (string, error) {
		m := protocol.PromptMessage{Text: msg}
		switch style {
		case pam.PromptEchoOff:
			m.Style = protocol.StyleSecret
		case pam.PromptEchoOn:
			m.Style = protocol.StyleQuestion
		case pam.ErrorMsg:
			m.Style = protocol.StyleError
		case pam.TextInfo:
			m.Style = protocol.StyleInfo
		default:
			return "", fmt.Errorf("unsupported PAM message style %d", style)
		}

		answers, err := conv.Converse(ctx, []protocol.PromptMessage{m})
		if err != nil {
			return "", err
		}
		if len(answers) == 0 {
			return "", nil
		}
		return answers[0], nil
	})
	if err != nil {
		return username, fmt.Errorf("%w: start pam: %v", ErrAuthBackend, err)
	}

	if err := tx.Authenticate(0); err != nil {
		return pamUser(tx, username), fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if err := tx.AcctMgmt(0); err != nil {
		return pamUser(tx, username), fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return pamUser(tx, username), nil
}

// pamUser is the user PAM settled on, which may come from a login prompt
func pamUser(tx *pam.Transaction, fallback string) string {
	if user, err := tx.GetItem(pam.User); err == nil && user != "" {
		return user
	}
	return fallback
}
