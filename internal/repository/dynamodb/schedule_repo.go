package dynamodb

import (
	"context"
	"fmt"
	"strconv"
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

// scheduleItem adds the sparse due-index keys to the stored schedule
type scheduleItem struct {
	domain.ScheduledJob
	DuePartition string `dynamodbav:"due_partition,omitempty"`
	DueAt        int64  `dynamodbav:"due_at"`
}

func toScheduleItem(job *domain.ScheduledJob) scheduleItem {
	item := scheduleItem{ScheduledJob: *job, DueAt: job.NextRun}
	if job.Enabled {
		item.DuePartition = duePartitionValue
	}
	return item
}

type scheduleRepository struct {
	client    API
	tableName string
	logger    logger.Logger
}

// NewScheduleRepository creates a new DynamoDB schedule repository
func NewScheduleRepository(client API, tableName string, log logger.Logger) iface.ScheduleRepository {
	if tableName == "" {
		tableName = DefaultScheduleTable
	}
	return &scheduleRepository{
		client:    client,
		tableName: tableName,
		logger:    log.With(logger.String("component", "schedule_repository")),
	}
}

func (r *scheduleRepository) Create(ctx context.Context, job *domain.ScheduledJob) error {
	item, err := attributevalue.MarshalMap(toScheduleItem(job))
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if _, ok := conditionFailed(err); ok {
			return fmt.Errorf("schedule %s: %w", job.ID, repository.ErrAlreadyExists)
		}
		r.logger.Error("failed to create schedule", logger.String("schedule_id", job.ID), logger.Error(err))
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepository) Update(ctx context.Context, job *domain.ScheduledJob, expectedVersion int64) error {
	next := *job
	next.Version = expectedVersion + 1
	item, err := attributevalue.MarshalMap(toScheduleItem(&next))
	if err != nil {
		return fmt.Errorf("failed to marshal schedule: %w", err)
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
				return fmt.Errorf("schedule %s: %w", job.ID, repository.ErrNotFound)
			}
			r.logger.Warn("optimistic lock failed - schedule was modified by another process",
				logger.String("schedule_id", job.ID),
				logger.Int64("expected_version", expectedVersion))
			return fmt.Errorf("%w: schedule_id=%s", repository.ErrOptimisticLockFailed, job.ID)
		}
		r.logger.Error("failed to update schedule", logger.Error(err))
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	job.Version = next.Version
	return nil
}

func (r *scheduleRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.Error("failed to get schedule", logger.Error(err))
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	if len(result.Item) == 0 {
		return nil, fmt.Errorf("schedule %s: %w", id, repository.ErrNotFound)
	}
	return unmarshalSchedule(result.Item)
}

func (r *scheduleRepository) List(ctx context.Context, limit int, nextToken string) (*iface.SchedulePage, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	if nextToken != "" {
		startKey, err := decodeNextToken(nextToken)
		if err != nil {
			r.logger.Warn("failed to decode next token", logger.Error(err))
			return nil, fmt.Errorf("invalid next token: %w", err)
		}
		input.ExclusiveStartKey = startKey
	}

	result, err := r.client.Scan(ctx, input)
	if err != nil {
		r.logger.Error("failed to scan schedules", logger.Error(err))
		return nil, fmt.Errorf("failed to scan schedules: %w", err)
	}

	schedules := make([]*domain.ScheduledJob, 0, len(result.Items))
	for _, item := range result.Items {
		job, err := unmarshalSchedule(item)
		if err != nil {
			r.logger.Warn("failed to unmarshal schedule", logger.Error(err))
			continue
		}
		schedules = append(schedules, job)
	}

	var token string
	if result.LastEvaluatedKey != nil {
		if token, err = encodeNextToken(result.LastEvaluatedKey); err != nil {
			r.logger.Warn("failed to encode next token", logger.Error(err))
		}
	}
	return &iface.SchedulePage{Schedules: schedules, NextToken: token}, nil
}

// ListDue reads the sparse due index. Items whose next_run is unset sort first
// because due_at is 0 for them; ties on due_at are broken by id after the read.
func (r *scheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledJob, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(dueIndex),
		KeyConditionExpression: aws.String("due_partition = :due AND due_at <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":due": &types.AttributeValueMemberS{Value: duePartitionValue},
			":now": numberValue(now.UnixMilli()),
		},
		ScanIndexForward: aws.Bool(true),
	}

	due := make([]*domain.ScheduledJob, 0)
	var lastDueAt int64
	for {
		result, err := r.client.Query(ctx, input)
		if err != nil {
			r.logger.Error("failed to query due schedules", logger.Error(err))
			return nil, fmt.Errorf("failed to query due schedules: %w", err)
		}
		for _, item := range result.Items {
			job, err := unmarshalSchedule(item)
			if err != nil {
				r.logger.Warn("failed to unmarshal schedule", logger.Error(err))
				continue
			}
			if !job.Enabled {
				continue
			}
			due = append(due, job)
			lastDueAt = job.NextRun
		}
		// keep reading past the limit only while due_at ties could still reorder the tail
		if result.LastEvaluatedKey == nil || (limit > 0 && len(due) > limit && due[limit-1].NextRun != lastDueAt) {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	repository.SortDue(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *scheduleRepository) Claim(ctx context.Context, req iface.ClaimRequest) (*domain.ScheduledJob, error) {
	values := map[string]types.AttributeValue{
		":expected": numberValue(req.ExpectedVersion),
		":version":  numberValue(req.ExpectedVersion + 1),
		":now":      numberValue(req.Now.UnixMilli()),
	}
	set := "SET version = :version, updated_at = :now, due_at = :due_at"
	remove := ""
	if req.NextRun.IsZero() {
		values[":due_at"] = numberValue(0)
		remove = " REMOVE next_run"
	} else {
		values[":next_run"] = numberValue(req.NextRun.UnixMilli())
		values[":due_at"] = values[":next_run"]
		set += ", next_run = :next_run"
	}
	if !req.LastRun.IsZero() {
		values[":last_run"] = numberValue(req.LastRun.UnixMilli())
		set += ", last_run = :last_run"
	}

	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(r.tableName),
		Key:                                 map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: req.JobID}},
		UpdateExpression:                    aws.String(set + remove),
		ConditionExpression:                 aws.String("attribute_exists(id) AND version = :expected"),
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		if condErr, ok := conditionFailed(err); ok {
			if len(condErr.Item) == 0 {
				return nil, fmt.Errorf("schedule %s: %w", req.JobID, repository.ErrNotFound)
			}
			return nil, fmt.Errorf("%w: schedule_id=%s expected_version=%d", repository.ErrClaimConflict, req.JobID, req.ExpectedVersion)
		}
		r.logger.Error("failed to claim schedule", logger.String("schedule_id", req.JobID), logger.Error(err))
		return nil, fmt.Errorf("failed to claim schedule: %w", err)
	}
	return unmarshalSchedule(result.Attributes)
}

func unmarshalSchedule(item map[string]types.AttributeValue) (*domain.ScheduledJob, error) {
	var stored scheduleItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule: %w", err)
	}
	job := stored.ScheduledJob
	return &job, nil
}

func numberValue(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}
