package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	DefaultScheduleTable = "scheduled_jobs"
	DefaultRunTable      = "scheduled_job_runs"

	dueIndex        = "due_index"
	jobIDIndex      = "job_id_index"
	statusIndex     = "status_index"
	queueJobIDIndex = "queue_job_id_index"

	// every enabled schedule carries this partition value; disabled ones drop out of the index
	duePartitionValue = "due"
)

// API is the subset of the DynamoDB client used by the repositories
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// EnsureTables creates the schedule and run tables with their indexes when missing
func EnsureTables(ctx context.Context, client *dynamodb.Client, scheduleTable, runTable string) error {
	str := types.ScalarAttributeTypeS
	num := types.ScalarAttributeTypeN
	all := &types.Projection{ProjectionType: types.ProjectionTypeAll}

	specs := []*dynamodb.CreateTableInput{
		{
			TableName: aws.String(scheduleTable),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("id"), AttributeType: str},
				{AttributeName: aws.String("due_partition"), AttributeType: str},
				{AttributeName: aws.String("due_at"), AttributeType: num},
			},
			KeySchema: []types.KeySchemaElement{{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash}},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
				IndexName: aws.String(dueIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("due_partition"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("due_at"), KeyType: types.KeyTypeRange},
				},
				Projection: all,
			}},
			BillingMode: types.BillingModePayPerRequest,
		},
		{
			TableName: aws.String(runTable),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("id"), AttributeType: str},
				{AttributeName: aws.String("job_id"), AttributeType: str},
				{AttributeName: aws.String("created_at"), AttributeType: num},
				{AttributeName: aws.String("status"), AttributeType: str},
				{AttributeName: aws.String("started_at"), AttributeType: num},
				{AttributeName: aws.String("queue_job_id"), AttributeType: str},
			},
			KeySchema: []types.KeySchemaElement{{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash}},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				{
					IndexName: aws.String(jobIDIndex),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: aws.String("job_id"), KeyType: types.KeyTypeHash},
						{AttributeName: aws.String("created_at"), KeyType: types.KeyTypeRange},
					},
					Projection: all,
				},
				{
					IndexName: aws.String(statusIndex),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: aws.String("status"), KeyType: types.KeyTypeHash},
						{AttributeName: aws.String("started_at"), KeyType: types.KeyTypeRange},
					},
					Projection: all,
				},
				{
					IndexName: aws.String(queueJobIDIndex),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: aws.String("queue_job_id"), KeyType: types.KeyTypeHash},
					},
					Projection: all,
				},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
	}

	for _, spec := range specs {
		_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: spec.TableName})
		if err == nil {
			continue
		}
		var notFound *types.ResourceNotFoundException
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to describe table %s: %w", aws.ToString(spec.TableName), err)
		}
		if _, err := client.CreateTable(ctx, spec); err != nil {
			return fmt.Errorf("failed to create table %s: %w", aws.ToString(spec.TableName), err)
		}
		waiter := dynamodb.NewTableExistsWaiter(client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: spec.TableName}, 2*time.Minute); err != nil {
			return fmt.Errorf("failed waiting for table %s: %w", aws.ToString(spec.TableName), err)
		}
	}
	return nil
}
