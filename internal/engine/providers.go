package engine

import (
	"sort"

	"github.com/google/wire"

	"github.com/zeusync/zengine/internal/config"
	"github.com/zeusync/zengine/internal/core/assets"
	"github.com/zeusync/zengine/internal/core/components"
	"github.com/zeusync/zengine/internal/core/events/bus"
	"github.com/zeusync/zengine/internal/core/observability/log"
	"github.com/zeusync/zengine/internal/core/registry"
	"github.com/zeusync/zengine/internal/core/scene"
	"github.com/zeusync/zengine/internal/core/serial"
	"github.com/zeusync/zengine/internal/server"
)

// ProviderSet builds every engine service from a Config.
var ProviderSet = wire.NewSet(
	ProvideConsole,
	ProvideLogger,
	ProvideRegistry,
	ProvideCache,
	ProvideSerializer,
	ProvideBus,
	ProvideManager,
	ProvideNotifier,
	New,
)

func ProvideConsole(cfg config.Config) *log.Console {
	return log.NewConsole(cfg.Console)
}

func ProvideLogger(cfg config.Config, console *log.Console) log.Log {
	return log.New(log.ParseLevel(cfg.LogLevel), console)
}

// ProvideRegistry registers the asset, scene and stock component types plus
// the extension mappings from the config.
func ProvideRegistry(cfg config.Config, logger log.Log) (*registry.Registry, error) {
	reg := registry.New(logger)
	err := reg.Populate(func(r *registry.Registry) error {
		for _, register := range []func(*registry.Registry) error{assets.Register, scene.Register, components.Register} {
			if err := register(r); err != nil {
				return err
			}
		}
		exts := make([]string, 0, len(cfg.Extensions))
		for ext := range cfg.Extensions {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		for _, ext := range exts {
			if err := r.MapExtension(ext, cfg.Extensions[ext]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func ProvideCache(reg *registry.Registry, logger log.Log) *assets.Cache {
	return assets.NewCache(reg, logger)
}

// ProvideSerializer also installs the serializer as the cache codec.
func ProvideSerializer(reg *registry.Registry, cache *assets.Cache, logger log.Log) *serial.Serializer {
	ser := serial.New(reg, cache, logger)
	cache.SetCodec(ser)
	return ser
}

func ProvideBus() bus.EventBus {
	return bus.New()
}

func ProvideManager(b bus.EventBus, logger log.Log) *scene.Manager {
	return scene.NewManager(b, logger)
}

func ProvideNotifier(cfg config.Config, b bus.EventBus, logger log.Log) (*server.Notifier, error) {
	sc := server.DefaultConfig()
	sc.Token = cfg.Notifier.Token
	if cfg.Notifier.Buffer > 0 {
		sc.Buffer = cfg.Notifier.Buffer
	}
	return server.NewNotifier(b, logger, sc)
}
