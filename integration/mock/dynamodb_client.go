package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBClient is a mock DynamoDB table keyed by a string partition key
// and a string sort key.
type DynamoDBClient struct {
	mu sync.Mutex

	PartitionKey string
	SortKey      string
	// Items maps partition value to sort value to item
	Items map[string]map[string]map[string]types.AttributeValue
}

// NewDynamoDBClient creates a new mock DynamoDB client
func NewDynamoDBClient(partitionKey, sortKey string) *DynamoDBClient {
	return &DynamoDBClient{
		PartitionKey: partitionKey,
		SortKey:      sortKey,
		Items:        make(map[string]map[string]map[string]types.AttributeValue),
	}
}

// PutItem stores an item, replacing any item with the same key.
func (m *DynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk, err := stringAttr(params.Item, m.PartitionKey)
	if err != nil {
		return nil, err
	}
	sk, err := stringAttr(params.Item, m.SortKey)
	if err != nil {
		return nil, err
	}
	if m.Items[pk] == nil {
		m.Items[pk] = make(map[string]map[string]types.AttributeValue)
	}
	m.Items[pk][sk] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

// Query supports equality on the partition key via the ":pk" placeholder,
// ScanIndexForward and Limit.
func (m *DynamoDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk, err := stringAttr(params.ExpressionAttributeValues, ":pk")
	if err != nil {
		return nil, err
	}

	sortValues := make([]string, 0, len(m.Items[pk]))
	for sk := range m.Items[pk] {
		sortValues = append(sortValues, sk)
	}
	sort.Strings(sortValues)
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		sort.Sort(sort.Reverse(sort.StringSlice(sortValues)))
	}
	if params.Limit != nil && int(*params.Limit) < len(sortValues) {
		sortValues = sortValues[:*params.Limit]
	}

	out := &dynamodb.QueryOutput{Count: int32(len(sortValues))}
	for _, sk := range sortValues {
		out.Items = append(out.Items, m.Items[pk][sk])
	}
	return out, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("mock DynamoDB: missing string attribute %s", name)
	}
	return v.Value, nil
}
