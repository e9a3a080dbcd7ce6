package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"taskcal/internal/domain"
)

const edmInt64 = "Edm.Int64"

var retryStatusCodes = []int{408, 429, 500, 502, 503, 504}

// TableStore keeps tasks in an Azure Storage table partitioned by owner.
type TableStore struct {
	table *aztables.Client
}

// NewTableStore connects to the named table using a storage connection string.
func NewTableStore(connStr, tableName string) (*TableStore, error) {
	svc, err := NewTableService(connStr)
	if err != nil {
		return nil, err
	}
	return &TableStore{table: svc.NewClient(tableName)}, nil
}

// NewTableService builds the tables service client with the retry policy
// shared by the API and the provisioning tool.
func NewTableService(connStr string) (*aztables.ServiceClient, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
	return aztables.NewServiceClientFromConnectionString(connStr, &opts)
}

type taskEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	Title         string `json:"Title"`
	Body          string `json:"Body"`
	Year          int    `json:"Year"`
	Month         int    `json:"Month"`
	Day           int    `json:"Day"`
	DateOrdinal   int    `json:"DateOrdinal"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

type taskEntityPatch struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	Title         string `json:"Title"`
	Body          string `json:"Body"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

func toEntity(t domain.Task) taskEntity {
	return taskEntity{
		PartitionKey:  t.OwnerID,
		RowKey:        t.ID,
		Title:         t.Title,
		Body:          t.Body,
		Year:          t.Date.Year,
		Month:         int(t.Date.Month),
		Day:           t.Date.Day,
		DateOrdinal:   ordinal(t.Date),
		CreatedAt:     t.CreatedAt.UnixMicro(),
		CreatedAtType: edmInt64,
		UpdatedAt:     t.UpdatedAt.UnixMicro(),
		UpdatedAtType: edmInt64,
	}
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:        ent.RowKey,
		OwnerID:   ent.PartitionKey,
		Title:     ent.Title,
		Body:      ent.Body,
		Date:      domain.Day{Year: ent.Year, Month: time.Month(ent.Month), Day: ent.Day},
		CreatedAt: time.UnixMicro(ent.CreatedAt).UTC(),
		UpdatedAt: time.UnixMicro(ent.UpdatedAt).UTC(),
	}, nil
}

func (s *TableStore) List(ctx context.Context, q Query) ([]domain.Task, error) {
	filter := q.odataFilter()
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, fmt.Errorf("decode task: %w", err)
			}
			tasks = append(tasks, t)
		}
	}
	sortNewestFirst(tasks)
	return tasks, nil
}

func (s *TableStore) Create(ctx context.Context, ownerID string, in domain.NewTask) (domain.Task, error) {
	t := newTask(ownerID, in)
	payload, err := sonic.Marshal(toEntity(t))
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

func (s *TableStore) Update(ctx context.Context, ownerID, id string, patch domain.TaskPatch) (domain.Task, error) {
	payload, err := sonic.Marshal(taskEntityPatch{
		PartitionKey:  ownerID,
		RowKey:        id,
		Title:         patch.Title,
		Body:          patch.Body,
		UpdatedAt:     nextTimestamp().UnixMicro(),
		UpdatedAtType: edmInt64,
	})
	if err != nil {
		return domain.Task{}, err
	}
	et := azcore.ETagAny
	_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if isNotFound(err) {
		return domain.Task{}, domain.NotFound(id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}

	ent, err := s.table.GetEntity(ctx, ownerID, id, nil)
	if isNotFound(err) {
		return domain.Task{}, domain.NotFound(id)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return decodeTaskEntity(ent.Value)
}

func (s *TableStore) Delete(ctx context.Context, ownerID, id string) error {
	_, err := s.table.DeleteEntity(ctx, ownerID, id, nil)
	if isNotFound(err) {
		return domain.NotFound(id)
	}
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
