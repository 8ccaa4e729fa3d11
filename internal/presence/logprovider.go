package presence

import "github.com/Iron-Ham/codestatus/internal/logging"

// LogProvider wraps another Provider and logs every primitive call at debug
// level, and every failure at warn level. RunCallbacks is not logged.
type LogProvider struct {
	inner  Provider
	logger *logging.Logger
}

// NewLogProvider wraps inner.
func NewLogProvider(inner Provider, logger *logging.Logger) *LogProvider {
	return &LogProvider{inner: inner, logger: logger.WithComponent("provider")}
}

func (p *LogProvider) done(op string, err error, args ...any) error {
	args = append([]any{"op", op}, args...)
	if err != nil {
		p.logger.Warn("provider call failed", append(args, "error", err.Error())...)
		return err
	}
	p.logger.Debug("provider call", args...)
	return nil
}

func (p *LogProvider) Init(appID string) error {
	return p.done("init", p.inner.Init(appID), "app_id", appID)
}

func (p *LogProvider) RunCallbacks() {
	p.inner.RunCallbacks()
}

func (p *LogProvider) Publish(key string, v Value) error {
	return p.done("publish", p.inner.Publish(key, v), "key", key, "value", v.String())
}

func (p *LogProvider) ClearAll() error {
	return p.done("clear_all", p.inner.ClearAll())
}

func (p *LogProvider) Shutdown() error {
	return p.done("shutdown", p.inner.Shutdown())
}
