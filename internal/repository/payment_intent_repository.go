package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/models"
)

var ErrIntentNotFound = errors.New("payment intent record not found")

type PaymentIntentRepository struct {
	client    DynamoDBAPI
	tableName string
	logger    *logrus.Logger
	nowF      func() time.Time
}

func NewPaymentIntentRepository(client DynamoDBAPI, tableName string, logger *logrus.Logger) *PaymentIntentRepository {
	return &PaymentIntentRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
		nowF:      time.Now,
	}
}

// Store writes the record with a TTL attribute taken from ExpiresAt.
func (r *PaymentIntentRepository) Store(ctx context.Context, record *models.PaymentIntentRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal payment intent: %w", err)
	}
	for k, v := range itemKey(record.GetPK(), record.GetSK()) {
		item[k] = v
	}
	item["TTL"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(record.ExpiresAt.Unix(), 10)}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to store payment intent in DynamoDB")
		return fmt.Errorf("failed to store payment intent: %w", err)
	}

	return nil
}

func (r *PaymentIntentRepository) Get(ctx context.Context, intentID string) (*models.PaymentIntentRecord, error) {
	key := &models.PaymentIntentRecord{IntentID: intentID}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(key.GetPK(), key.GetSK()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	if result.Item == nil {
		return nil, ErrIntentNotFound
	}

	var record models.PaymentIntentRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment intent: %w", err)
	}

	return &record, nil
}

// UpdateStatus sets the processor status of an existing record.
func (r *PaymentIntentRepository) UpdateStatus(ctx context.Context, intentID, status string) error {
	key := &models.PaymentIntentRecord{IntentID: intentID}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 itemKey(key.GetPK(), key.GetSK()),
		UpdateExpression:    aws.String("SET #status = :status, updated_at = :updated_at"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: status},
			":updated_at": &types.AttributeValueMemberS{Value: r.nowF().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrIntentNotFound
		}
		r.logger.WithError(err).WithField("intent_id", intentID).Error("Failed to update payment intent status")
		return fmt.Errorf("failed to update payment intent: %w", err)
	}

	return nil
}
