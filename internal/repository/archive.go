package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"order-bot/internal/domain"
)

var newUUID = func() string {
	return uuid.NewString()
}

// ArchiveTable writes each confirmed order as its own immutable item.
// Unlike the JSON file archive it is safe across processes.
type ArchiveTable struct {
	c     *Client
	newID func() string
}

func (t *ArchiveTable) Append(ctx context.Context, order domain.Order) (domain.ArchiveEntry, error) {
	entry := domain.NewArchiveEntry(t.newID(), order, t.c.now().UTC())
	payload, err := json.Marshal(entry)
	if err != nil {
		return domain.ArchiveEntry{}, fmt.Errorf("repository: encode archive entry: %w", err)
	}

	_, err = t.c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        strValue(archivePK(entry.ID)),
			"SK":        strValue(skEntry),
			"manager":   strValue(entry.Manager),
			"client":    strValue(entry.Client),
			"total":     strValue(entry.Total.StringFixed(2)),
			"timestamp": strValue(entry.Timestamp.Format(time.RFC3339)),
			"payload":   strValue(string(payload)),
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.ArchiveEntry{}, fmt.Errorf("repository: archive entry %s already exists", entry.ID)
		}
		return domain.ArchiveEntry{}, fmt.Errorf("repository: put archive entry: %w", err)
	}
	return entry, nil
}
