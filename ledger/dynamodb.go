package ledger

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gurre/fs-ingest/aws"
)

// Key attribute names of the ledger table.
const (
	AttrPipelineName = "PipelineName"
	AttrDeployedAt   = "DeployedAt"
)

// item is the DynamoDB representation of an Entry.
type item struct {
	PipelineName     string `dynamodbav:"PipelineName"`
	DeployedAt       string `dynamodbav:"DeployedAt"`
	PipelineARN      string `dynamodbav:"PipelineArn,omitempty"`
	Action           string `dynamodbav:"Action"`
	DefinitionDigest string `dynamodbav:"DefinitionDigest"`
	EnvironmentName  string `dynamodbav:"EnvironmentName,omitempty"`
	EnvironmentType  string `dynamodbav:"EnvironmentType,omitempty"`
	ClientToken      string `dynamodbav:"ClientToken,omitempty"`
}

// DynamoDBStore implements Store on a table keyed by PipelineName (partition)
// and DeployedAt (sort).
// Example:
//
//	client := dynamodb.NewFromConfig(cfg)
//	store := ledger.NewDynamoDBStore(client, "pipeline-deployments")
type DynamoDBStore struct {
	client aws.DynamoDBClient
	table  string
}

// NewDynamoDBStore creates a DynamoDBStore for table.
func NewDynamoDBStore(client aws.DynamoDBClient, table string) *DynamoDBStore {
	return &DynamoDBStore{client: client, table: table}
}

// Append writes one entry.
func (s *DynamoDBStore) Append(ctx context.Context, e Entry) error {
	av, err := attributevalue.MarshalMap(item{
		PipelineName:     e.PipelineName,
		DeployedAt:       sortKey(e.DeployedAt),
		PipelineARN:      e.PipelineARN,
		Action:           e.Action,
		DefinitionDigest: e.DefinitionDigest,
		EnvironmentName:  e.EnvironmentName,
		EnvironmentType:  e.EnvironmentType,
		ClientToken:      e.ClientToken,
	})
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.table,
		Item:      av,
	}); err != nil {
		return fmt.Errorf("failed to write ledger entry: %w", err)
	}
	return nil
}

// Latest returns the most recent entry for pipelineName.
func (s *DynamoDBStore) Latest(ctx context.Context, pipelineName string) (Entry, bool, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &s.table,
		KeyConditionExpression: awssdk.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": AttrPipelineName,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pipelineName},
		},
		ScanIndexForward: awssdk.Bool(false),
		Limit:            awssdk.Int32(1),
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to query ledger: %w", err)
	}
	if len(out.Items) == 0 {
		return Entry{}, false, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Items[0], &it); err != nil {
		return Entry{}, false, fmt.Errorf("failed to decode ledger entry: %w", err)
	}
	deployedAt, err := time.Parse(sortKeyLayout, it.DeployedAt)
	if err != nil {
		return Entry{}, false, fmt.Errorf("invalid ledger timestamp %q: %w", it.DeployedAt, err)
	}

	return Entry{
		PipelineName:     it.PipelineName,
		PipelineARN:      it.PipelineARN,
		Action:           it.Action,
		DefinitionDigest: it.DefinitionDigest,
		EnvironmentName:  it.EnvironmentName,
		EnvironmentType:  it.EnvironmentType,
		ClientToken:      it.ClientToken,
		DeployedAt:       deployedAt,
	}, true, nil
}
