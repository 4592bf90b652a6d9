package repository

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type stubDynamo struct {
	getIn    []*dynamodb.GetItemInput
	putIn    []*dynamodb.PutItemInput
	updateIn []*dynamodb.UpdateItemInput

	item map[string]types.AttributeValue
	err  error
}

func (s *stubDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	s.getIn = append(s.getIn, params)
	if s.err != nil {
		return nil, s.err
	}
	return &dynamodb.GetItemOutput{Item: s.item}, nil
}

func (s *stubDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	s.putIn = append(s.putIn, params)
	if s.err != nil {
		return nil, s.err
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (s *stubDynamo) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	s.updateIn = append(s.updateIn, params)
	if s.err != nil {
		return nil, s.err
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func requireS(t *testing.T, av types.AttributeValue) string {
	t.Helper()
	s, ok := av.(*types.AttributeValueMemberS)
	require.True(t, ok, "expected string attribute, got %T", av)
	return s.Value
}
