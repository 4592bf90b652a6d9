package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/models"
)

type CustomerRepository struct {
	client    DynamoDBAPI
	tableName string
	logger    *logrus.Logger
	nowF      func() time.Time
}

func NewCustomerRepository(client DynamoDBAPI, tableName string, logger *logrus.Logger) *CustomerRepository {
	return &CustomerRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
		nowF:      time.Now,
	}
}

// GetByEmail returns nil, nil when no profile exists.
func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	customer := &models.Customer{Email: email}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(customer.GetPK(), customer.GetSK()),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get customer from DynamoDB")
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var dbCustomer models.Customer
	if err := attributevalue.UnmarshalMap(result.Item, &dbCustomer); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal customer from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal customer: %w", err)
	}

	return &dbCustomer, nil
}

// RecordLogin upserts the profile of a verified user and bumps its login counter.
func (r *CustomerRepository) RecordLogin(ctx context.Context, user models.CurrentUser) error {
	now := r.nowF().UTC()
	customer := &models.Customer{Email: strings.ToLower(user.Email)}

	values, err := attributevalue.MarshalMap(map[string]any{
		":email":    customer.Email,
		":name":     user.Name,
		":provider": user.Provider,
		":now":      now,
		":one":      1,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal login update: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              itemKey(customer.GetPK(), customer.GetSK()),
		UpdateExpression: aws.String("SET email = :email, #name = :name, provider = :provider, updated_at = :now, last_login_at = :now, created_at = if_not_exists(created_at, :now) ADD login_count :one"),
		ExpressionAttributeNames: map[string]string{
			"#name": "name",
		},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		r.logger.WithError(err).WithField("email", customer.Email).Error("Failed to record customer login")
		return fmt.Errorf("failed to record login: %w", err)
	}

	return nil
}
