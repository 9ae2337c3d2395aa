package app

import (
	"time"

	"pushgate/internal/config"
	"pushgate/internal/present"
	"pushgate/internal/storage"
	"pushgate/internal/transport/amqp"
	"pushgate/internal/transport/httpapi"
	"pushgate/pkg/logx"
)

// Config has been validated by the time these run, so duration parse errors
// cannot happen and fall back to the defaults.

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Remote: logx.RemoteConfig{
			Enabled:    l.Remote.Enabled,
			MinLevel:   l.Remote.MinLevel,
			RatePerSec: l.Remote.RatePerSec,
		},
	}
}

func mapStorage(cfg *config.Config) storage.Config {
	s := cfg.Storage
	return storage.Config{
		Driver:        s.Driver,
		Path:          s.Path,
		DSN:           s.DSN,
		Key:           s.Key,
		BusyTimeout:   config.DurationOr(s.BusyTimeout, time.Second),
		RedisAddr:     s.Redis.Addr,
		RedisPassword: s.Redis.Password,
		RedisDB:       s.Redis.DB,
	}
}

func mapPresent(cfg *config.Config) present.Config {
	p := cfg.Presentation
	return present.Config{
		RatePerSec:    p.RatePerSec,
		RetryMax:      p.RetryMax,
		RetryBase:     config.DurationOr(p.RetryBase, 500*time.Millisecond),
		RetryMaxDelay: config.DurationOr(p.RetryMaxDelay, 10*time.Second),
		HistorySize:   p.HistorySize,
		SendTimeout:   10 * time.Second,
	}
}

func mapHTTP(cfg *config.Config) httpapi.Config {
	h := cfg.HTTP
	return httpapi.Config{
		Addr:         h.Addr,
		Mode:         h.Mode,
		ReadTimeout:  config.DurationOr(h.ReadTimeout, 10*time.Second),
		WriteTimeout: config.DurationOr(h.WriteTimeout, 30*time.Second),
		Pprof:        h.Pprof,
		PprofToken:   h.PprofToken,
	}
}

func mapAMQP(cfg *config.Config) amqp.Config {
	q := cfg.AMQP
	return amqp.Config{URL: q.URL, Queue: q.Queue, Prefetch: q.Prefetch, ConsumerTag: q.ConsumerTag}
}
