package dynamodb

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	put *dynamodb.PutItemInput
	get *dynamodb.GetItemInput
}

func (f *fakeAPI) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.put = params
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.get = params
	return &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"RunId": &types.AttributeValueMemberS{Value: "run-1"},
		"Size":  &types.AttributeValueMemberN{Value: "42"},
		"Sent":  &types.AttributeValueMemberBOOL{Value: true},
		"Tags": &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberS{Value: "cats"},
			&types.AttributeValueMemberNULL{Value: true},
		}},
	}}, nil
}

func TestPutItem(t *testing.T) {
	fake := &fakeAPI{}
	client := &dynamodbClientImpl{dynamo: fake}

	err := client.PutItem(context.Background(), "digest-artifacts", map[string]AttributeValue{
		"RunId": String("run-1"),
		"Size":  Number("42"),
	})
	require.NoError(t, err)

	assert.Equal(t, "digest-artifacts", aws.ToString(fake.put.TableName))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "run-1"}, fake.put.Item["RunId"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "42"}, fake.put.Item["Size"])
}

func TestGetItemConvertsTypes(t *testing.T) {
	fake := &fakeAPI{}
	client := &dynamodbClientImpl{dynamo: fake}

	item, err := client.GetItem(context.Background(), "digest-artifacts", map[string]AttributeValue{"RunId": String("run-1")})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"RunId": "run-1",
		"Size":  "42",
		"Sent":  true,
		"Tags":  []interface{}{"cats", nil},
	}, item)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "run-1"}, fake.get.Key["RunId"])
	assert.True(t, aws.ToBool(fake.get.ConsistentRead))
}
