package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/lightgreet/greeter"
	"github.com/bnema/lightgreet/internal/accounts"
	"github.com/bnema/lightgreet/internal/config"
	"github.com/bnema/lightgreet/internal/logger"
	"github.com/bnema/lightgreet/internal/sessions"
	"github.com/bnema/lightgreet/internal/ui"
	"github.com/spf13/cobra"
)

var errLoginFailed = errors.New("authentication failed")

var (
	loginUser        string
	loginSessionName string
	loginLanguage    string
	loginGuest       bool
	loginAutologin   bool
	loginPickSession bool
	loginAttempts    int
	loginTimeout     time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in through the daemon from this terminal",
	Long: `Connect to the daemon, answer its prompts at the terminal and start a
session once authentication succeeds.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "user to log in (default: ask)")
	loginCmd.Flags().StringVar(&loginSessionName, "session", "", "session to start (default: the daemon's default)")
	loginCmd.Flags().StringVar(&loginLanguage, "language", "", "language for the session")
	loginCmd.Flags().BoolVar(&loginGuest, "guest", false, "log in as the guest account")
	loginCmd.Flags().BoolVar(&loginAutologin, "autologin", false, "log in the configured autologin account")
	loginCmd.Flags().BoolVar(&loginPickSession, "pick-session", false, "choose from the installed sessions")
	loginCmd.Flags().IntVar(&loginAttempts, "attempts", 3, "password attempts before giving up")
	loginCmd.Flags().DurationVar(&loginTimeout, "connect-timeout", 10*time.Second, "time allowed to reach the daemon")

	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flow := &loginFlow{
		prompter: ui.NewFormPrompter(),
		out:      cmd.OutOrStdout(),
		user:     loginUser,
		session:  loginSessionName,
		language: loginLanguage,
		guest:    loginGuest,
		auto:     loginAutologin,
		attempts: loginAttempts,
	}
	if flow.user == "" {
		flow.user = config.Get().Greeter.DefaultUser
	}

	loop := greeter.NewLoop()
	g, err := newGreeter(loop, flow.handlers())
	if err != nil {
		return err
	}
	defer g.Close()
	flow.g = g
	flow.loop = loop

	connectCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	err = ui.Wait("Connecting to daemon", func() error {
		return g.ConnectToDaemonSync(connectCtx)
	})
	cancel()
	if err != nil {
		return err
	}
	logger.Debug("Connected", "daemon", g.DaemonVersion(), "api", g.APIVersion())

	if flow.user == "" && !flow.guest && !flow.auto {
		if flow.user, err = pickUser(ctx, g, flow.prompter); err != nil {
			return err
		}
	}
	if flow.session == "" && loginPickSession {
		if flow.session, err = pickSession(flow.prompter); err != nil {
			return err
		}
	}

	return flow.run(ctx)
}

// loginFlow drives one login on the greeter's loop
type loginFlow struct {
	g        *greeter.Greeter
	loop     *greeter.Loop
	prompter ui.Prompter
	out      io.Writer

	user     string
	session  string
	language string
	guest    bool
	auto     bool
	attempts int

	failures int
	err      error
}

func (f *loginFlow) handlers() greeter.Handlers {
	return greeter.Handlers{
		ShowPrompt:             f.showPrompt,
		ShowMessage:            f.showMessage,
		AuthenticationComplete: f.authenticationComplete,
		AutologinTimerExpired: func() {
			logger.Info("Autologin timer expired")
			if err := f.g.AuthenticateAutologin(); err != nil {
				f.finish(err)
			}
		},
		Reset: func() {
			logger.Debug("Daemon reset the greeter")
		},
	}
}

// run starts authentication and dispatches callbacks until the login ends
func (f *loginFlow) run(ctx context.Context) error {
	f.loop.Invoke(func() {
		if err := f.begin(); err != nil {
			f.finish(err)
		}
	})
	if err := f.loop.Run(ctx); err != nil {
		_ = f.g.CancelAuthentication()
		return err
	}
	return f.err
}

func (f *loginFlow) begin() error {
	switch {
	case f.guest:
		return f.g.AuthenticateAsGuest()
	case f.auto:
		return f.g.AuthenticateAutologin()
	default:
		return f.g.Authenticate(f.user)
	}
}

func (f *loginFlow) finish(err error) {
	f.err = err
	f.loop.Quit()
}

func (f *loginFlow) showPrompt(text string, kind greeter.PromptType) {
	answer, err := f.prompter.Input(text, kind == greeter.PromptTypeSecret)
	if err != nil {
		f.err = err
		if cerr := f.g.CancelAuthentication(); cerr != nil {
			f.finish(err)
		}
		return
	}
	if err := f.g.Respond(answer); err != nil {
		f.finish(err)
	}
}

func (f *loginFlow) showMessage(text string, kind greeter.MessageType) {
	fmt.Fprintln(f.out, ui.FormatMessage(text, kind == greeter.MessageTypeError))
}

func (f *loginFlow) authenticationComplete() {
	switch f.g.State() {
	case greeter.StateAuthenticated:
		f.startSession()
	case greeter.StateCancelled:
		if f.err == nil {
			f.err = ui.ErrAborted
		}
		f.loop.Quit()
	default:
		f.failures++
		fmt.Fprintln(f.out, ui.FormatResult(false, "Login", "incorrect password"))
		if f.guest || f.auto || f.failures >= f.attempts {
			f.finish(errLoginFailed)
			return
		}
		// Ask again for the same account
		f.user = f.g.AuthenticationUser()
		if err := f.g.Authenticate(f.user); err != nil {
			f.finish(err)
		}
	}
}

func (f *loginFlow) startSession() {
	if f.language != "" {
		if err := f.g.SetLanguage(f.language); err != nil {
			f.finish(err)
			return
		}
	}

	user := f.g.AuthenticationUser()
	f.g.StartSession(context.Background(), f.loop, f.session, func(err error) {
		if err != nil {
			fmt.Fprintln(f.out, ui.FormatResult(false, "Session", err.Error()))
			f.finish(err)
			return
		}
		name, _ := f.g.DispatchedSession()
		if name == "" {
			name = "default"
		}
		fmt.Fprintln(f.out, ui.FormatResult(true, "Session", fmt.Sprintf("%s started for %s", name, user)))
		f.finish(nil)
	})
}

// pickUser offers the AccountsService users unless the daemon hides them.
// An empty result lets the daemon ask for a name.
func pickUser(ctx context.Context, g *greeter.Greeter, p ui.Prompter) (string, error) {
	if user := g.SelectUserHint(); user != "" {
		return user, nil
	}
	if !config.Get().Greeter.UseAccounts || g.HideUsersHint() {
		return "", nil
	}

	client, err := accounts.Connect()
	if err != nil {
		logger.Warn("AccountsService unavailable", "err", err)
		return "", nil
	}
	defer client.Close()

	users, err := client.ListUsers(ctx)
	if err != nil {
		logger.Warn("Failed to list users", "err", err)
		return "", nil
	}

	options := make([]ui.Option, 0, len(users)+1)
	for _, u := range users {
		options = append(options, ui.Option{Label: u.DisplayName(), Value: u.Name})
	}
	if g.ShowManualLoginHint() || len(options) == 0 {
		options = append(options, ui.Option{Label: "Other...", Value: ""})
	}
	return p.Select("Who is logging in?", options)
}

func pickSession(p ui.Prompter) (string, error) {
	installed, err := sessions.Load(config.Get().Daemon.SessionDirs...)
	if err != nil {
		return "", err
	}
	if len(installed) == 0 {
		return "", nil
	}

	options := make([]ui.Option, 0, len(installed))
	for _, s := range installed {
		options = append(options, ui.Option{Label: s.Name, Value: s.Key})
	}
	return p.Select("Session", options)
}
