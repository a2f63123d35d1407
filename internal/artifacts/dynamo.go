package artifacts

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Philanthropists/newsletter-digest/internal/dynamodb"
)

const DefaultTable = "newsletter-digest-artifacts"

// DynamoStore puts one item per run and stage, keyed by RunId and Stage.
type DynamoStore struct {
	Client dynamodb.Client
	Table  string
}

func (s DynamoStore) table() string {
	if s.Table == "" {
		return DefaultTable
	}
	return s.Table
}

func (s DynamoStore) Save(ctx context.Context, rc RunContext, stage Stage, payload []byte) (string, error) {
	item := map[string]dynamodb.AttributeValue{
		"RunId":       dynamodb.String(rc.ID.String()),
		"Stage":       dynamodb.String(string(stage)),
		"Timestamp":   dynamodb.String(rc.Timestamp.UTC().Format(time.RFC3339)),
		"ContentType": dynamodb.String(stage.ContentType()),
		"Size":        dynamodb.Number(strconv.Itoa(len(payload))),
		"Payload":     dynamodb.String(string(payload)),
	}

	if err := s.Client.PutItem(ctx, s.table(), item); err != nil {
		return "", fmt.Errorf("putting %s artifact: %w", stage, err)
	}

	return fmt.Sprintf("dynamodb://%s/%s/%s", s.table(), rc.ID, stage), nil
}

func (s DynamoStore) Load(ctx context.Context, runID uuid.UUID, stage Stage) ([]byte, error) {
	key := map[string]dynamodb.AttributeValue{
		"RunId": dynamodb.String(runID.String()),
		"Stage": dynamodb.String(string(stage)),
	}

	item, err := s.Client.GetItem(ctx, s.table(), key)
	if err != nil {
		return nil, fmt.Errorf("getting %s artifact of run %s: %w", stage, runID, err)
	}

	payload, ok := item["Payload"].(string)
	if !ok {
		return nil, fmt.Errorf("%s artifact of run %s: %w", stage, runID, ErrNotFound)
	}
	return []byte(payload), nil
}
