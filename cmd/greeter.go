package cmd

import (
	"github.com/bnema/lightgreet/greeter"
	"github.com/bnema/lightgreet/internal/config"
	"github.com/bnema/lightgreet/internal/ipc"
	"github.com/bnema/lightgreet/internal/logger"
)

// newGreeter builds a greeter from the [greeter] table. Inside a LightDM
// session the inherited pipes win over any socket.
func newGreeter(loop *greeter.Loop, h greeter.Handlers) (*greeter.Greeter, error) {
	cfg := config.Get().Greeter

	var dial greeter.Dialer
	if ipc.HasEnvPipes() && socketPath == "" {
		logger.Debug("Using pipes passed by the display manager")
		dial = greeter.EnvDialer()
	} else {
		path, err := resolveSocket(cfg.SocketPath)
		if err != nil {
			return nil, err
		}
		logger.Debug("Using daemon socket", "path", path)
		dial = greeter.SocketDialer(path)
	}

	return greeter.New(loop, dial,
		greeter.WithHandlers(h),
		greeter.WithResettable(cfg.Resettable),
		greeter.WithMinAPIVersion(cfg.MinAPIVersion),
	), nil
}
