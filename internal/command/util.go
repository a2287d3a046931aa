package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"

	"golang.org/x/term"

	"github.com/stolasapp/permits/internal/config"
	"github.com/stolasapp/permits/internal/observability"
	"github.com/stolasapp/permits/internal/permits"
	"github.com/stolasapp/permits/internal/storage"
)

type configKey struct{}

func prompt(prompt string, mask bool) ([]byte, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		if _, err := os.Stderr.WriteString(prompt); err != nil {
			return nil, err
		}
	}
	return readLine(os.Stdin, mask)
}

// cloned from term.readPasswordLine.
func readLine(stdin *os.File, mask bool) ([]byte, error) {
	if mask && term.IsTerminal(int(stdin.Fd())) {
		defer func() { _, _ = os.Stderr.WriteString("\n") }()
		return term.ReadPassword(int(stdin.Fd()))
	}
	var buf [1]byte
	var ret []byte

	for {
		n, err := stdin.Read(buf[:])
		if n > 0 {
			switch buf[0] {
			case '\b':
				if len(ret) > 0 {
					ret = ret[:len(ret)-1]
				}
			case '\n':
				if runtime.GOOS != "windows" {
					return ret, nil
				}
				// otherwise ignore \n
			case '\r':
				if runtime.GOOS == "windows" {
					return ret, nil
				}
				// otherwise ignore \r
			default:
				ret = append(ret, buf[0]) //nolint:gosec // erroneous error
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(ret) > 0 {
				return ret, nil
			}
			return ret, err
		}
	}
}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown-dev"
	}
	ver := "unknown"
	dirty := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			ver = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if dirty {
		ver += "-dev"
	}
	return ver
}

// loadConfig resolves the configuration for the file path chosen by the root
// command and installs the configured logger as the default.
func loadConfig(ctx context.Context) (*config.Config, *slog.Logger, error) {
	path, ok := ctx.Value(configKey{}).(string)
	if !ok {
		return nil, nil, errors.New("config file resolution failed")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger := observability.InitSlog(cfg)
	logger.DebugContext(ctx, "configuration loaded",
		slog.String("path", path),
		slog.Any("config", cfg),
	)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// loadService loads the configuration, opens the store and builds the record
// service for the configured profile. The caller must close the store.
func loadService(ctx context.Context) (*config.Config, *slog.Logger, *storage.DB, *permits.Service, error) {
	cfg, logger, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	profile, err := permits.ProfileByName(cfg.Query.Profile)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	store, err := storage.NewDB(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	svc, err := permits.NewService(store, profile, cfg.Query.Timeout, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, nil, err
	}
	return cfg, logger, store, svc, nil
}
