package main

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"taskcal/internal/config"
	"taskcal/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Infof("storage init starting, backend: %s", cfg.Storage.Backend)

	ctx := context.Background()
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		s, err := storage.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		_ = s.Close()
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		err = storage.NewPostgresStore(pool).EnsureTable(ctx)
		pool.Close()
		if err != nil {
			log.Fatalf("postgres schema: %v", err)
		}
	case config.BackendTables:
		if cfg.Storage.ConnectionString == "" || cfg.Storage.TasksTable == "" {
			log.Fatal("missing STORAGE_CONNECTION_STRING or TASKS_TABLE")
		}
		if err := createTables(ctx, cfg.Storage.ConnectionString, []string{cfg.Storage.TasksTable}); err != nil {
			log.Fatalf("create tables: %v", err)
		}
	default:
		log.Infof("nothing to provision for backend %q", cfg.Storage.Backend)
	}

	if cfg.Storage.EventsQueue != "" {
		if cfg.Storage.ConnectionString == "" {
			log.Fatal("missing STORAGE_CONNECTION_STRING for EVENTS_QUEUE")
		}
		if err := createQueues(ctx, cfg.Storage.ConnectionString, []string{cfg.Storage.EventsQueue}); err != nil {
			log.Fatalf("create queues: %v", err)
		}
	}

	log.Info("storage init complete")
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := storage.NewTableService(connStr)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		_, err := svc.NewClient(name).CreateTable(ctx, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
		log.Debugf("table %s ready", name)
	}
	return nil
}

func createQueues(ctx context.Context, connStr string, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, storage.QueueClientOptions())
		if err != nil {
			return err
		}
		_, err = q.Create(ctx, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
				return err
			}
		}
		log.Debugf("queue %s ready", name)
	}
	return nil
}
