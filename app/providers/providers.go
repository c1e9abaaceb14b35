// Package providers wires the application from config: storage disks, the
// record store, the worker pool, the upload engine, and the event streams.
package providers

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/shashiranjanraj/upbridge/app/controllers"
	"github.com/shashiranjanraj/upbridge/app/routes"
	"github.com/shashiranjanraj/upbridge/app/services"
	"github.com/shashiranjanraj/upbridge/config"
	"github.com/shashiranjanraj/upbridge/pkg/callback"
	"github.com/shashiranjanraj/upbridge/pkg/logger"
	"github.com/shashiranjanraj/upbridge/pkg/router"
	"github.com/shashiranjanraj/upbridge/pkg/sse"
	"github.com/shashiranjanraj/upbridge/pkg/storage"
	"github.com/shashiranjanraj/upbridge/pkg/uploader"
	"github.com/shashiranjanraj/upbridge/pkg/workerpool"
	"github.com/shashiranjanraj/upbridge/pkg/ws"
)

// Container holds every long-lived service of a running server.
type Container struct {
	Uploader *uploader.Uploader
	Pool     *workerpool.Pool
	Hub      *ws.Hub
	Broker   *sse.Broker
	Notifier *services.Notifier

	rdb    *redis.Client
	cancel context.CancelFunc
}

// Build boots the container. callbacks are registered on the engine before
// anything else, so in chained events they run last and have the final say.
func Build(ctx context.Context, callbacks map[string]callback.Handler) (*Container, error) {
	if err := config.Load(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if uri := config.LogMongoURI(); uri != "" {
		if err := logger.EnableMongo(uri, config.LogMongoDB(), "logs"); err != nil {
			logger.Warn("mongo log sink disabled", "error", err)
		}
	}

	if err := storage.Connect(ctx); err != nil {
		return nil, err
	}
	disk, err := storage.Lookup(config.StorageDefault())
	if err != nil {
		return nil, err
	}

	c := &Container{
		Pool:   workerpool.New("uploads", config.UploadWorkers()),
		Hub:    ws.NewHub(),
		Broker: sse.NewBroker(),
	}

	store, err := c.store(ctx)
	if err != nil {
		c.Pool.Shutdown()
		return nil, err
	}

	up, err := uploader.New(uploader.Options{
		Disk:              disk,
		Store:             store,
		Pool:              c.Pool,
		AutoUpload:        config.UploadAuto(),
		MaxFileSize:       config.UploadMaxSize(),
		AllowedExtensions: config.UploadAllowedExt(),
		PathPrefix:        config.UploadPrefix(),
	}, callbacks)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Uploader = up

	c.Notifier = services.NewNotifier(c.Hub, c.Broker)
	c.Notifier.Attach(up)

	hubCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.Hub.Run(hubCtx)

	logger.Info("upbridge booted",
		"disk", disk.Name(),
		"store", config.UploadStore(),
		"workers", config.UploadWorkers(),
		"auto_upload", config.UploadAuto(),
		"auth", config.AuthEnabled(),
	)
	return c, nil
}

func (c *Container) store(ctx context.Context) (uploader.Store, error) {
	switch config.UploadStore() {
	case "memory", "":
		return uploader.NewMemoryStore(), nil
	case "redis":
		rdb, err := uploader.DialRedis(ctx, config.RedisAddr(), config.RedisPassword())
		if err != nil {
			return nil, err
		}
		c.rdb = rdb
		return uploader.NewRedisStore(rdb), nil
	default:
		return nil, fmt.Errorf("providers: unknown UPLOAD_STORE %q", config.UploadStore())
	}
}

// RegisterRoutes mounts the API on r.
func (c *Container) RegisterRoutes(r *router.Router) {
	routes.RegisterAPI(r, routes.API{
		Uploads:     controllers.NewUploadController(c.Uploader, config.UploadMaxSize()),
		Callbacks:   controllers.NewCallbackController(c.Uploader),
		Events:      controllers.NewEventController(c.Hub, c.Broker),
		AuthEnabled: config.AuthEnabled(),
		SubmitLimit: config.UploadRateLimit(),
	})
}

// StopStreams ends every websocket and SSE connection.
func (c *Container) StopStreams() {
	c.Broker.Close()
	if c.cancel != nil {
		c.cancel()
	}
}

// Close drains uploads and releases every resource. It is safe to call on
// a partially built container.
func (c *Container) Close() {
	if c.Notifier != nil {
		c.Notifier.Detach()
	}
	if c.Uploader != nil {
		c.Uploader.Close()
	}
	if c.Pool != nil {
		c.Pool.Shutdown()
	}
	if c.Broker != nil {
		c.Broker.Close()
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	logger.CloseSinks()
}
