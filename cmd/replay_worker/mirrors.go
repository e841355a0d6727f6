package main

import (
	"context"
	"time"

	"replay_worker/internal/replay/repository"
	"replay_worker/pkg/config"
	"replay_worker/pkg/database"
	"replay_worker/pkg/logger"

	"go.uber.org/zap"
)

// mirrorSet 啟用中的鏡像輸出，任何一個連不上都只會被略過
type mirrorSet struct {
	publishers []repository.EventPublisher
	store      repository.ArtifactStore
	closers    []func() error
}

func (m *mirrorSet) close() {
	for i := len(m.closers) - 1; i >= 0; i-- {
		_ = m.closers[i]()
	}
}

func connectMirrors(ctx context.Context, cfg config.Worker, log *logger.LogInfo) *mirrorSet {
	m := &mirrorSet{}

	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := database.NewKafkaWriterWithRetry(ctx, database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
		}, log)
		if err != nil {
			log.Warn("kafka mirror disabled", zap.Error(err))
		} else {
			m.publishers = append(m.publishers, repository.NewKafkaEventPublisher(writer))
			m.closers = append(m.closers, writer.Close)
		}
	}

	if cfg.RabbitMQ.URL != "" {
		if err := m.connectRabbit(cfg.RabbitMQ, log); err != nil {
			log.Warn("rabbitmq mirror disabled", zap.Error(err))
		}
	}

	if cfg.Ledger.DSN != "" {
		db, err := database.NewPGConnection(database.Connection{
			ConnectStr:    cfg.Ledger.DSN,
			RetryCount:    cfg.Ledger.RetryCount,
			RetryInterval: time.Duration(cfg.Ledger.RetryInterval),
		}, log)
		if err != nil {
			log.Warn("export ledger disabled", zap.Error(err))
		} else {
			ledger := repository.NewExportRepo(db)
			if err := ledger.AutoMigrate(); err != nil {
				log.Warn("export ledger migrate failed, disabled", zap.Error(err))
			} else {
				m.publishers = append(m.publishers, ledger)
			}
			if sqlDB, err := db.DB(); err == nil {
				m.closers = append(m.closers, sqlDB.Close)
			}
		}
	}

	if cfg.MinIO.Endpoint != "" {
		mc, err := database.NewMinIOConnection(ctx, database.MinIOConnection{
			Endpoint:      cfg.MinIO.Endpoint,
			User:          cfg.MinIO.User,
			Password:      cfg.MinIO.Password,
			BucketName:    cfg.MinIO.BucketName,
			UseSSL:        cfg.MinIO.UseSSL,
			RetryCount:    cfg.MinIO.RetryCount,
			RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
		}, log)
		if err != nil {
			log.Warn("artifact mirror disabled", zap.Error(err))
		} else {
			m.store = repository.NewArtifactStore(mc, "exports")
		}
	}

	return m
}

func (m *mirrorSet) connectRabbit(c config.RabbitMQConfig, log *logger.LogInfo) error {
	conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    c.URL,
		RetryCount:    c.RetryCount,
		RetryInterval: time.Duration(c.RetryInterval),
	}, log)
	if err != nil {
		return err
	}
	ch, err := database.GetRabbitMQChannelWithRetry(conn, c.RetryCount, time.Duration(c.RetryInterval))
	if err != nil {
		_ = conn.Close()
		return err
	}
	publisher, err := repository.NewRabbitEventPublisher(database.NewRabbitRepository(ch), c.Queue)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	m.publishers = append(m.publishers, publisher)
	m.closers = append(m.closers, conn.Close, ch.Close)
	return nil
}
