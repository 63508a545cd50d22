package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kairos/internal/domain"
	"kairos/internal/logger"
	"kairos/internal/repository"
	iface "kairos/internal/repository/iface"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type runRepository struct {
	client    API
	tableName string
	logger    logger.Logger
}

// NewRunRepository creates a new DynamoDB run repository
func NewRunRepository(client API, tableName string, log logger.Logger) iface.RunRepository {
	if tableName == "" {
		tableName = DefaultRunTable
	}
	return &runRepository{
		client:    client,
		tableName: tableName,
		logger:    log.With(logger.String("component", "run_repository")),
	}
}

func (r *runRepository) Create(ctx context.Context, run *domain.ScheduledJobRun) error {
	item, err := attributevalue.MarshalMap(run)
	if err != nil {
		r.logger.Error("failed to marshal run", logger.Error(err))
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if _, ok := conditionFailed(err); ok {
			return fmt.Errorf("run %s: %w", run.ID, repository.ErrAlreadyExists)
		}
		r.logger.Error("failed to create run", logger.Error(err))
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *runRepository) Update(ctx context.Context, run *domain.ScheduledJobRun, expectedVersion int64) error {
	next := run.Clone()
	next.Version = expectedVersion + 1
	item, err := attributevalue.MarshalMap(next)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(id) AND version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": numberValue(expectedVersion),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		if condErr, ok := conditionFailed(err); ok {
			if len(condErr.Item) == 0 {
				return fmt.Errorf("run %s: %w", run.ID, repository.ErrNotFound)
			}
			r.logger.Warn("optimistic lock failed - run was modified by another process",
				logger.String("run_id", run.ID),
				logger.Int64("expected_version", expectedVersion))
			return fmt.Errorf("%w: run_id=%s", repository.ErrOptimisticLockFailed, run.ID)
		}
		r.logger.Error("failed to update run", logger.Error(err))
		return fmt.Errorf("failed to update run: %w", err)
	}

	run.Version = next.Version
	return nil
}

func (r *runRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledJobRun, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.Error("failed to get run", logger.Error(err))
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if len(result.Item) == 0 {
		return nil, fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	var run domain.ScheduledJobRun
	if err := attributevalue.UnmarshalMap(result.Item, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// GetByQueueJobID reads the index and then the base item, since index reads are eventually consistent
func (r *runRepository) GetByQueueJobID(ctx context.Context, queueJobID string) (*domain.ScheduledJobRun, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(queueJobIDIndex),
		KeyConditionExpression: aws.String("queue_job_id = :qid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":qid": &types.AttributeValueMemberS{Value: queueJobID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		r.logger.Error("failed to query run by queue job id", logger.Error(err))
		return nil, fmt.Errorf("failed to query run by queue job id: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, fmt.Errorf("run with queue job %s: %w", queueJobID, repository.ErrNotFound)
	}
	idAttr, ok := result.Items[0]["id"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("run index item without id for queue job %s", queueJobID)
	}
	return r.GetByID(ctx, idAttr.Value)
}

func (r *runRepository) ListByJobID(ctx context.Context, jobID string, limit int, nextToken string) (*iface.RunPage, error) {
	queryInput := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(jobIDIndex),
		KeyConditionExpression: aws.String("job_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: jobID},
		},
		ScanIndexForward: aws.Bool(false), // newest first
	}
	if limit > 0 {
		queryInput.Limit = aws.Int32(int32(limit))
	}
	if nextToken != "" {
		exclusiveStartKey, err := decodeNextToken(nextToken)
		if err != nil {
			r.logger.Warn("failed to decode next token", logger.Error(err))
			return nil, fmt.Errorf("invalid next token: %w", err)
		}
		queryInput.ExclusiveStartKey = exclusiveStartKey
	}

	result, err := r.client.Query(ctx, queryInput)
	if err != nil {
		r.logger.Error("failed to query runs", logger.Error(err))
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	var encodedNextToken string
	if result.LastEvaluatedKey != nil {
		encodedNextToken, err = encodeNextToken(result.LastEvaluatedKey)
		if err != nil {
			r.logger.Warn("failed to encode next token", logger.Error(err))
		}
	}

	return &iface.RunPage{
		Runs:      r.unmarshalRuns(result.Items),
		NextToken: encodedNextToken,
	}, nil
}

func (r *runRepository) ListActiveByJobID(ctx context.Context, jobID string) ([]*domain.ScheduledJobRun, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(jobIDIndex),
		KeyConditionExpression: aws.String("job_id = :id"),
		FilterExpression:       aws.String("#status IN (:pending, :dispatched, :running)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id":         &types.AttributeValueMemberS{Value: jobID},
			":pending":    &types.AttributeValueMemberS{Value: string(domain.RunStatusPending)},
			":dispatched": &types.AttributeValueMemberS{Value: string(domain.RunStatusDispatched)},
			":running":    &types.AttributeValueMemberS{Value: string(domain.RunStatusRunning)},
		},
		ScanIndexForward: aws.Bool(true),
	}
	return r.queryAll(ctx, input, 0)
}

// ListOverdueRunning queries the status index once per non-terminal status and merges the results
func (r *runRepository) ListOverdueRunning(ctx context.Context, now time.Time, staleness time.Duration, limit int) ([]*domain.ScheduledJobRun, error) {
	cutoff := now.Add(-staleness).UnixMilli()
	overdue := make([]*domain.ScheduledJobRun, 0)
	for _, status := range []domain.RunStatus{domain.RunStatusPending, domain.RunStatusDispatched, domain.RunStatusRunning} {
		runs, err := r.queryAll(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(statusIndex),
			KeyConditionExpression: aws.String("#status = :status AND started_at <= :cutoff"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": &types.AttributeValueMemberS{Value: string(status)},
				":cutoff": numberValue(cutoff),
			},
			ScanIndexForward: aws.Bool(true),
		}, limit)
		if err != nil {
			return nil, err
		}
		overdue = append(overdue, runs...)
	}

	sort.Slice(overdue, func(i, k int) bool {
		if overdue[i].StartedAt != overdue[k].StartedAt {
			return overdue[i].StartedAt < overdue[k].StartedAt
		}
		return overdue[i].ID < overdue[k].ID
	})
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return overdue, nil
}

func (r *runRepository) queryAll(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]*domain.ScheduledJobRun, error) {
	runs := make([]*domain.ScheduledJobRun, 0)
	for {
		result, err := r.client.Query(ctx, input)
		if err != nil {
			r.logger.Error("failed to query runs", logger.Error(err))
			return nil, fmt.Errorf("failed to query runs: %w", err)
		}
		runs = append(runs, r.unmarshalRuns(result.Items)...)
		if result.LastEvaluatedKey == nil || (limit > 0 && len(runs) >= limit) {
			return runs, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func (r *runRepository) unmarshalRuns(items []map[string]types.AttributeValue) []*domain.ScheduledJobRun {
	runs := make([]*domain.ScheduledJobRun, 0, len(items))
	for _, item := range items {
		var run domain.ScheduledJobRun
		if err := attributevalue.UnmarshalMap(item, &run); err != nil {
			r.logger.Warn("failed to unmarshal run", logger.Error(err))
			continue
		}
		runs = append(runs, &run)
	}
	return runs
}
