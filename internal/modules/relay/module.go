package relay

import (
	"context"
	"sync"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"signal_relay/internal/journal"
	altrady "signal_relay/internal/modules/altrady/service"
	"signal_relay/internal/modules/config"
	discord "signal_relay/internal/modules/discord/service"
	"signal_relay/internal/modules/relay/service"
	"signal_relay/internal/notify"
	"signal_relay/internal/order"
	"signal_relay/internal/signal"
)

type Params struct {
	fx.In

	Config   *config.Config
	Log      *zap.Logger
	Tracer   opentracing.Tracer // трейсер должен быть поднят до первого цикла
	Source   *discord.Client
	Sink     *altrady.Client
	Journal  journal.Journal
	Notifier notify.Notifier
	Observer service.CycleObserver
}

func NewPoller(p Params) (*service.Poller, error) {
	cfg := p.Config
	compiler, err := order.NewCompiler(cfg.CompilerSettings())
	if err != nil {
		return nil, err
	}
	return service.NewPoller(service.Deps{
		Source:     p.Source,
		Sink:       p.Sink,
		Store:      service.NewStore(cfg.Relay.StateFile),
		Gate:       service.NewGate(cfg.Relay.Cooldown, cfg.Relay.SeenHashLimit, nil),
		Extractor:  signal.NewExtractor(cfg.ExtractOptions()),
		Validation: cfg.ValidationOptions(),
		Compiler:   compiler,
		Journal:    p.Journal,
		Notifier:   p.Notifier,
		Observer:   p.Observer,
		Schedule:   service.NewSchedule(cfg.Relay.PollBase, cfg.Relay.PollOffset, cfg.Relay.PollJitter),
		FaultPause: cfg.Relay.FaultPause,
		Log:        p.Log.Named("relay"),
	}), nil
}

// Run запускает цикл опроса; OnStop ждёт, пока текущий цикл доработает.
func Run(lc fx.Lifecycle, p *service.Poller, cfg *config.Config, n notify.Notifier, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Load()
			log.Info("relay started",
				zap.String("channel", cfg.Discord.ChannelID),
				zap.Int("endpoints", len(cfg.Altrady.WebhookURLs)),
				zap.String("exchange", cfg.Altrady.Exchange),
				zap.Bool("test_mode", cfg.Altrady.TestMode),
			)
			n.Sendf("signal relay started (channel %s, %d endpoint(s))", cfg.Discord.ChannelID, len(cfg.Altrady.WebhookURLs))
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
				log.Info("relay stopped")
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func Module() fx.Option {
	return fx.Module("relay",
		fx.Provide(NewPoller),
		fx.Invoke(Run),
	)
}
