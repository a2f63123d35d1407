package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type AttributeValue struct {
	types.AttributeValue
}

func String(s string) AttributeValue {
	return AttributeValue{AttributeValue: &types.AttributeValueMemberS{Value: s}}
}

func Number(n string) AttributeValue {
	return AttributeValue{AttributeValue: &types.AttributeValueMemberN{Value: n}}
}

type Client interface {
	PutItem(ctx context.Context, tableName string, item map[string]AttributeValue) error
	GetItem(ctx context.Context, tableName string, key map[string]AttributeValue) (map[string]interface{}, error)
}

type api interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

func NewClient(ctx context.Context, region string) (Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}

	return &dynamodbClientImpl{dynamo: dynamodb.NewFromConfig(cfg)}, nil
}

type dynamodbClientImpl struct {
	dynamo api
}

func (d *dynamodbClientImpl) PutItem(ctx context.Context, tableName string, item map[string]AttributeValue) error {
	params := &dynamodb.PutItemInput{
		Item:      unwrap(item),
		TableName: aws.String(tableName),
	}

	_, err := d.dynamo.PutItem(ctx, params)
	return err
}

// GetItem returns the item stored under key with its attributes converted to
// plain Go values. A missing item yields an empty map.
func (d *dynamodbClientImpl) GetItem(ctx context.Context, tableName string, key map[string]AttributeValue) (map[string]interface{}, error) {
	params := &dynamodb.GetItemInput{
		Key:            unwrap(key),
		TableName:      aws.String(tableName),
		ConsistentRead: aws.Bool(true),
	}

	res, err := d.dynamo.GetItem(ctx, params)
	if err != nil {
		return nil, err
	}

	item := make(map[string]interface{}, len(res.Item))
	for k, v := range res.Item {
		item[k] = plainValue(v)
	}

	return item, nil
}

func unwrap(values map[string]AttributeValue) map[string]types.AttributeValue {
	res := make(map[string]types.AttributeValue, len(values))
	for k, v := range values {
		res[k] = v.AttributeValue
	}
	return res
}

// plainValue unwraps the scalar and set members. Numbers stay strings so no
// precision is lost. Unknown members map to nil.
func plainValue(v types.AttributeValue) interface{} {
	switch m := v.(type) {
	case *types.AttributeValueMemberS:
		return m.Value
	case *types.AttributeValueMemberN:
		return m.Value
	case *types.AttributeValueMemberB:
		return m.Value
	case *types.AttributeValueMemberBOOL:
		return m.Value
	case *types.AttributeValueMemberNULL:
		return nil
	case *types.AttributeValueMemberSS:
		return m.Value
	case *types.AttributeValueMemberNS:
		return m.Value
	case *types.AttributeValueMemberBS:
		return m.Value
	case *types.AttributeValueMemberL:
		list := make([]interface{}, 0, len(m.Value))
		for _, e := range m.Value {
			list = append(list, plainValue(e))
		}
		return list
	case *types.AttributeValueMemberM:
		nested := make(map[string]interface{}, len(m.Value))
		for k, e := range m.Value {
			nested[k] = plainValue(e)
		}
		return nested
	}
	return nil
}
