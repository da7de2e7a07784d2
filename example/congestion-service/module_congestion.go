package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	congestionapi "github.com/desain-gratis/congestion/delivery/congestion-api"
	"github.com/desain-gratis/congestion/lib/notifier"
	"github.com/desain-gratis/congestion/lib/notifier/api"
	"github.com/desain-gratis/congestion/lib/notifier/impl"
	repository "github.com/desain-gratis/congestion/repository/congestion"
	"github.com/desain-gratis/congestion/repository/congestion/inmemory"
	congestion_postgres "github.com/desain-gratis/congestion/repository/congestion/postgres"
	congestion_redis "github.com/desain-gratis/congestion/repository/congestion/redis"
	"github.com/desain-gratis/congestion/repository/congestion/seoul"
	"github.com/desain-gratis/congestion/types/entity"
	"github.com/desain-gratis/congestion/usecase/congestion"
	"github.com/desain-gratis/congestion/utility/pg"
)

type congestionModule struct {
	poller  *congestion.Poller
	closers []func() error
}

func (m *congestionModule) Close() error {
	var errs []error
	for _, closeFn := range m.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

func enableCongestion(ctx context.Context, router *httprouter.Router, cfg Config) (*congestionModule, error) {
	m := &congestionModule{}

	cache := congestion.NewStateCache()

	var opts []congestion.Option

	// restore the previous levels so a restart does not re-alert every area
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		m.closers = append(m.closers, client.Close)

		store := congestion_redis.New(client, cfg.Redis.Key)
		snapshot, err := store.Load(ctx)
		if err != nil {
			log.Warn().Err(err).Msgf("failed to restore congestion state, starting empty")
		} else {
			cache.Restore(snapshot)
			log.Info().Msgf("restored %v area(s) from redis", len(snapshot))
		}

		opts = append(opts, congestion.WithStateStore(store))
	}

	var journal repository.AlertJournal
	if cfg.Postgres.DSN != "" {
		db, err := pg.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.closers = append(m.closers, db.Close)

		pgJournal := congestion_postgres.New(db, "")
		if err := pgJournal.Init(ctx); err != nil {
			m.Close()
			return nil, err
		}

		journal = pgJournal
		opts = append(opts, congestion.WithJournal(pgJournal))
	}

	topic := impl.NewTopic()
	broadcaster := impl.NewBroadcaster(topic)

	poller, err := congestion.NewPoller(
		congestion.Config{
			Interval:     cfg.Poller.Interval,
			FetchTimeout: cfg.Poller.FetchTimeout,
			StaleAfter:   cfg.Cache.StaleAfter,
		},
		newFetcher(cfg),
		cache,
		broadcaster,
		opts...,
	)
	if err != nil {
		m.Close()
		return nil, err
	}
	m.poller = poller

	subscriber := congestion.NewSubscriber(topic, cache, impl.NewStandardSubscriber(cfg.Notifier.ListenQueueSize))
	stream := api.NewStreamAPI(subscriber.Subscribe).WithHeartbeat(cfg.HTTP.Heartbeat)
	query := congestionapi.New(cache, journal)

	router.GET("/main/congestion", stream.EventStream)
	router.GET("/main/congestion/ws", stream.Websocket(cfg.HTTP.AllowedOrigins))
	router.GET("/main/congestion/snapshot", query.Snapshot)
	router.GET("/main/congestion/alerts", query.Alerts)
	router.GET("/main/congestion/metrics", api.Metrics(map[string]notifier.Metric{
		"topic":  topic,
		"poller": poller,
	}))

	return m, nil
}

func newFetcher(cfg Config) repository.Fetcher {
	if cfg.Upstream.APIKey == "" {
		log.Warn().Msgf("upstream.api_key is empty, serving a static snapshot")
		return inmemory.NewFetcher(staticSnapshot(cfg.Upstream.Areas))
	}

	return seoul.New(
		&http.Client{Timeout: cfg.Poller.FetchTimeout},
		cfg.Upstream.BaseURL,
		cfg.Upstream.APIKey,
		cfg.Upstream.Areas,
		cfg.Upstream.Concurrency,
	)
}

func staticSnapshot(areas []string) entity.Snapshot {
	result := make(entity.Snapshot, 0, len(areas))
	for _, name := range areas {
		result = append(result, entity.Area{Name: name, Level: entity.Normal})
	}
	return result
}
