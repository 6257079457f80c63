package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"order-bot/internal/domain"
)

// SessionTable stores one conversation session per user.
type SessionTable struct {
	c *Client
}

func (t *SessionTable) Get(ctx context.Context, userID int64) (domain.Session, bool, error) {
	out, err := t.c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.c.tableName),
		Key:            t.c.key(userPK(userID), skSession),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: get session: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, false, nil
	}
	sess, err := itemToSession(userID, out.Item)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: decode session: %w", err)
	}
	return sess, true, nil
}

func (t *SessionTable) Put(ctx context.Context, sess domain.Session) error {
	item, err := sessionItem(sess)
	if err != nil {
		return err
	}
	item["PK"] = strValue(userPK(sess.UserID))
	item["SK"] = strValue(skSession)
	item["ttl"] = numValue(t.c.ttlValue())

	if _, err := t.c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.c.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("repository: put session: %w", err)
	}
	return nil
}

func (t *SessionTable) Delete(ctx context.Context, userID int64) error {
	if _, err := t.c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(t.c.tableName),
		Key:       t.c.key(userPK(userID), skSession),
	}); err != nil {
		return fmt.Errorf("repository: delete session: %w", err)
	}
	return nil
}

func sessionItem(sess domain.Session) (map[string]types.AttributeValue, error) {
	scratch, err := json.Marshal(sess.Scratch)
	if err != nil {
		return nil, fmt.Errorf("repository: encode session scratch: %w", err)
	}
	return map[string]types.AttributeValue{
		"chatId":    numValue(sess.ChatID),
		"step":      strValue(string(sess.State.Step)),
		"flow":      strValue(string(sess.State.Flow)),
		"scratch":   strValue(string(scratch)),
		"updatedAt": strValue(sess.UpdatedAt.UTC().Format(time.RFC3339Nano)),
	}, nil
}

func itemToSession(userID int64, item map[string]types.AttributeValue) (domain.Session, error) {
	chatID, err := int64Attr(item, "chatId")
	if err != nil {
		return domain.Session{}, err
	}
	step, err := strAttr(item, "step")
	if err != nil {
		return domain.Session{}, err
	}
	flow, err := strAttr(item, "flow")
	if err != nil {
		return domain.Session{}, err
	}
	sess := domain.Session{
		UserID: userID,
		ChatID: chatID,
		State:  domain.State{Step: domain.Step(step), Flow: domain.Flow(flow)},
	}

	scratch, err := optStrAttr(item, "scratch")
	if err != nil {
		return domain.Session{}, err
	}
	if scratch != "" {
		if err := json.Unmarshal([]byte(scratch), &sess.Scratch); err != nil {
			return domain.Session{}, fmt.Errorf("repository: scratch: %w", err)
		}
	}
	updated, err := optStrAttr(item, "updatedAt")
	if err != nil {
		return domain.Session{}, err
	}
	if updated != "" {
		if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return domain.Session{}, fmt.Errorf("repository: updatedAt: %w", err)
		}
	}
	return sess, nil
}
