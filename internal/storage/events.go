package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskcal/internal/domain"
)

// Publisher delivers task change events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev domain.TaskEvent) error
}

// Publishers fans an event out to every publisher and joins their errors.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, ev domain.TaskEvent) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewTaskEvent builds an event for a change to task.
func NewTaskEvent(typ string, t domain.Task) domain.TaskEvent {
	ev := domain.TaskEvent{
		ID:        newTaskID(),
		Type:      typ,
		UserID:    t.OwnerID,
		TaskID:    t.ID,
		Timestamp: nextTimestamp().UnixMicro(),
	}
	if !t.Date.IsZero() {
		ev.Date = t.Key()
	}
	return ev
}

// QueuePublisher enqueues events on an Azure Storage queue.
type QueuePublisher struct {
	queue *azqueue.QueueClient
}

// NewQueuePublisher connects to the named queue.
func NewQueuePublisher(connStr, queueName string) (*QueuePublisher, error) {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, QueueClientOptions())
	if err != nil {
		return nil, err
	}
	return &QueuePublisher{queue: q}, nil
}

// QueueClientOptions is the retry policy for queue clients.
func QueueClientOptions() *azqueue.ClientOptions {
	return &azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
}

func (p *QueuePublisher) Publish(ctx context.Context, ev domain.TaskEvent) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	redis   *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher for channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{redis: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev domain.TaskEvent) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, p.channel, data).Err()
}

// SubscribeEvents listens on channel and hands every decoded event to
// handle. It resubscribes when the channel closes and returns once ctx is
// done.
func SubscribeEvents(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, handle func(domain.TaskEvent)) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.TaskEvent
				if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
					logger.WithError(err).Error("unable to parse task event")
					continue
				}
				if ev.UserID == "" {
					logger.Warnf("task event %s without user id on %s - ignoring it", ev.ID, channel)
					continue
				}
				handle(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
