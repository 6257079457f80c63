package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"order-bot/internal/domain"
	"order-bot/internal/orders"
)

var orderFields = []orders.Field{
	orders.FieldManager,
	orders.FieldClient,
	orders.FieldNote,
	orders.FieldDeliveryDate,
	orders.FieldDeliveryAddress,
}

// OrderTable stores one in-progress order per user. Field writes are
// single-attribute updates, so concurrent writers never clobber each other's
// fields.
type OrderTable struct {
	c *Client
}

var _ orders.Store = (*OrderTable)(nil)

func (t *OrderTable) Create(ctx context.Context, userID int64) (domain.Order, error) {
	item := map[string]types.AttributeValue{
		"PK":    strValue(userPK(userID)),
		"SK":    strValue(skOrder),
		"items": strValue("null"),
		"ttl":   numValue(t.c.ttlValue()),
	}
	for _, f := range orderFields {
		item[string(f)] = strValue("")
	}
	if _, err := t.c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.c.tableName),
		Item:      item,
	}); err != nil {
		return domain.Order{}, fmt.Errorf("repository: create order: %w", err)
	}
	return domain.Order{}, nil
}

func (t *OrderTable) Get(ctx context.Context, userID int64) (domain.Order, bool, error) {
	out, err := t.c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.c.tableName),
		Key:            t.c.key(userPK(userID), skOrder),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("repository: get order: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Order{}, false, nil
	}
	o, err := itemToOrder(out.Item)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("repository: decode order: %w", err)
	}
	return o, true, nil
}

// SetField writes one text field, creating the order if it does not exist.
func (t *OrderTable) SetField(ctx context.Context, userID int64, field orders.Field, value string) error {
	var probe domain.Order
	if err := orders.ApplyField(&probe, field, value); err != nil {
		return err
	}
	return t.update(ctx, userID, string(field), value)
}

func (t *OrderTable) ReplaceLineItems(ctx context.Context, userID int64, items []domain.LineItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("repository: encode line items: %w", err)
	}
	return t.update(ctx, userID, "items", string(raw))
}

func (t *OrderTable) update(ctx context.Context, userID int64, attr, value string) error {
	_, err := t.c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(t.c.tableName),
		Key:              t.c.key(userPK(userID), skOrder),
		UpdateExpression: aws.String("SET #a = :v, #ttl = :ttl"),
		ExpressionAttributeNames: map[string]string{
			"#a":   attr,
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v":   strValue(value),
			":ttl": numValue(t.c.ttlValue()),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: update order %s: %w", attr, err)
	}
	return nil
}

func (t *OrderTable) Delete(ctx context.Context, userID int64) error {
	if _, err := t.c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(t.c.tableName),
		Key:       t.c.key(userPK(userID), skOrder),
	}); err != nil {
		return fmt.Errorf("repository: delete order: %w", err)
	}
	return nil
}

// Flush is a no-op: every write is already durable.
func (t *OrderTable) Flush(context.Context) error { return nil }

func itemToOrder(item map[string]types.AttributeValue) (domain.Order, error) {
	var o domain.Order
	for _, f := range orderFields {
		v, err := optStrAttr(item, string(f))
		if err != nil {
			return domain.Order{}, err
		}
		if err := orders.ApplyField(&o, f, v); err != nil {
			return domain.Order{}, err
		}
	}
	raw, err := optStrAttr(item, "items")
	if err != nil {
		return domain.Order{}, err
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &o.Items); err != nil {
			return domain.Order{}, fmt.Errorf("repository: items: %w", err)
		}
	}
	return o, nil
}
