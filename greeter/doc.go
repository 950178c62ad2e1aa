// Package greeter is a client for the LightDM greeter protocol.
//
// A Greeter drives one link to the display manager daemon: it connects,
// runs an authentication conversation, starts the user's session and can
// provision a directory shared with a user account.
//
// Blocking calls end in Sync and take a context. Non-blocking calls take the
// greeter's Loop and a completion callback that runs exactly once on that
// loop, after the call has returned. Both are thin wrappers around a Future,
// which is also exposed directly.
//
// Authentication results arrive asynchronously through Handlers:
//
//	loop := greeter.NewLoop()
//	g := greeter.New(loop, greeter.EnvDialer(), greeter.WithHandlers(greeter.Handlers{
//		ShowPrompt: func(text string, kind greeter.PromptType) { ... g.Respond(answer) },
//		AuthenticationComplete: func() {
//			if g.IsAuthenticated() {
//				g.StartSession(ctx, loop, "", func(err error) { loop.Quit() })
//			}
//		},
//	}))
//	g.ConnectToDaemon(ctx, loop, func(err error) { g.Authenticate("") })
//	loop.Run(ctx)
//
// Every error is a *Error whose kind can be tested with errors.Is against
// ErrConnection, ErrProtocolState, ErrDaemonRejected, ErrCancelled and
// ErrTransport.
package greeter
