package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"harvest-deck/internal/adapter/harvest"
	msql "harvest-deck/internal/adapter/mysql"
	"harvest-deck/internal/adapter/streamdeck"
	"harvest-deck/internal/config"
	"harvest-deck/internal/ports"
	"harvest-deck/internal/usecase"
)

// Launch holds the parameters the Stream Deck host passes on the command line.
type Launch struct {
	Port          int
	PluginUUID    string
	RegisterEvent string
	Info          string
}

// Info is the subset of the host's -info JSON the plugin uses.
type Info struct {
	Application struct {
		Version  string `json:"version"`
		Platform string `json:"platform"`
	} `json:"application"`
	Plugin struct {
		UUID    string `json:"uuid"`
		Version string `json:"version"`
	} `json:"plugin"`
}

// ParseInfo decodes the -info argument. An empty argument yields a zero Info.
func ParseInfo(raw string) (Info, error) {
	var info Info
	if raw == "" {
		return info, nil
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return info, fmt.Errorf("decode -info: %w", err)
	}
	return info, nil
}

// UserAgent identifies the plugin and host to Harvest.
func (i Info) UserAgent(base string) string {
	if i.Application.Version == "" && i.Plugin.Version == "" {
		return base
	}
	return fmt.Sprintf("%s (streamdeck %s; plugin %s)", base, i.Application.Version, i.Plugin.Version)
}

// App wires adapters and the engine.
type App struct {
	log    *slog.Logger
	cfg    config.Config
	launch Launch
	engine *usecase.Engine
	conn   *streamdeck.Conn
	sink   *msql.Sink
}

// New connects to the host, and to MySQL when configured, and builds the engine.
func New(ctx context.Context, log *slog.Logger, cfg config.Config, launch Launch) (*App, error) {
	info, err := ParseInfo(launch.Info)
	if err != nil {
		log.Warn("ignoring host info", slog.String("error", err.Error()))
	}
	log.Info("host info",
		slog.String("version", info.Application.Version),
		slog.String("platform", info.Application.Platform),
		slog.String("plugin", info.Plugin.Version),
	)

	a := &App{log: log, cfg: cfg, launch: launch}

	// Optional export; a typed nil must not reach the engine.
	var sink ports.TotalsSink
	if cfg.MySQL.DSN != "" {
		s, err := msql.Open(ctx, cfg.MySQL.DSN, log)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		a.sink = s
		sink = s
	}

	conn, err := streamdeck.Dial(ctx, launch.Port, launch.PluginUUID, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.conn = conn

	client := harvest.NewClient(cfg.Harvest.BaseURL, info.UserAgent(cfg.Harvest.UserAgent), log)
	eng, err := usecase.New(usecase.Options{
		Log:       log,
		Service:   client,
		Display:   conn,
		Settings:  conn,
		Sink:      sink,
		Interval:  cfg.Poll.Interval,
		Grace:     cfg.Poll.Grace,
		SoonDelay: cfg.Poll.SoonDelay,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = eng
	return a, nil
}

// Run registers with the host and serves until ctx is cancelled or the host
// closes the connection.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.engine.Run(ctx) })

	g.Go(func() error {
		// The host closing the socket ends the plugin.
		defer cancel()
		if err := a.conn.Register(ctx, a.launch.RegisterEvent); err != nil {
			return err
		}
		return a.conn.Run(ctx, a.engine)
	})

	if a.cfg.HTTP.Addr != "" {
		srv := a.HTTPServer(a.cfg.HTTP.Addr)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) close() {
	if a.conn != nil {
		_ = a.conn.Close()
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Warn("close mysql sink", slog.String("error", err.Error()))
		}
	}
}
