package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"shepherd/internal/platform/config"
	"shepherd/internal/platform/logger"
	redisplatform "shepherd/internal/platform/redis"
	"shepherd/internal/realtime"
	"shepherd/internal/realtime/cache"
	cachememory "shepherd/internal/realtime/cache/memory"
	cacheredis "shepherd/internal/realtime/cache/redis"
	id "shepherd/pkg/domain"
)

// main runs the kiosk-side sync agent: it keeps a websocket session to the
// check-in server and folds every update into the local snapshot cache, so
// the kiosk UI reads fresh state even while the network flaps.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var backend cache.Store
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		return
	}
	if redisClient != nil {
		defer redisClient.Close()
		backend = cacheredis.New(redisClient.Client)
		log.Info("using shared redis snapshot cache")
	} else {
		backend = cachememory.New()
		log.Info("using in-process snapshot cache")
	}

	channel := realtime.NewChannel(cfg.Realtime,
		realtime.WithLogger(log),
		realtime.WithReconciler(cache.NewReconciler(backend, log)),
	)
	if err := channel.Connect(ctx); err != nil {
		log.Error("connect sync server", "url", cfg.Realtime.ServerURL, "error", err)
		return
	}
	defer channel.Close()

	// SHEPHERD_KIOSK_SERVICES names the services this kiosk displays.
	for _, raw := range strings.Split(os.Getenv("SHEPHERD_KIOSK_SERVICES"), ",") {
		if serviceID := strings.TrimSpace(raw); serviceID != "" {
			if err := channel.SubscribeToService(id.ServiceID(serviceID)); err != nil {
				log.Warn("subscribe failed", "service_id", serviceID, "error", err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-channel.Events():
			if !ok {
				log.Error("sync channel stopped", "state", string(channel.State()))
				return
			}
			switch msg.Type {
			case realtime.TypeChildStatusUpdate:
				log.Info("child status update",
					"previous", string(msg.PreviousStatus), "new", string(msg.NewStatus))
			case realtime.TypeServiceCapacityUpdate:
				log.Info("capacity update",
					"previous", msg.PreviousCapacity, "new", msg.NewCapacity)
			case realtime.TypeError:
				log.Warn("server error message", "code", msg.ErrorCode, "message", msg.ErrorMessage)
			case realtime.TypeUnknown:
				log.Debug("ignoring unknown message variant")
			}
		}
	}
}
