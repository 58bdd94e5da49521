package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pmassist/authd/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrCodeConsumed is returned by MarkUsed when another request already
// flipped the row to used. The caller treats the code as spent.
var ErrCodeConsumed = errors.New("code already consumed")

// OTPRepository keeps the full issuance history per email. Rows share the
// partition key OTPREQ#<email> and sort newest-last under a zero-padded
// creation timestamp, so a descending query yields the latest request and
// a key-range query counts a rolling window.
type OTPRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewOTPRepository(client *dynamodb.Client, tableName string, logger *logrus.Logger) *OTPRepository {
	return &OTPRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func otpPK(email string) string {
	return "OTPREQ#" + email
}

func otpSK(createdAt time.Time, id string) string {
	return fmt.Sprintf("REQ#%020d#%s", createdAt.UnixNano(), id)
}

func (r *OTPRepository) Insert(ctx context.Context, otp *models.OTPRequest) error {
	item, err := attributevalue.MarshalMap(otp)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP request: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: otpPK(otp.Email)}
	item["SK"] = &types.AttributeValueMemberS{Value: otpSK(otp.CreatedAt, otp.ID)}
	item["TTL"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", otp.ExpiresAt.Add(24*time.Hour).Unix())}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to store OTP request in DynamoDB")
		return fmt.Errorf("failed to store OTP request: %w", err)
	}

	return nil
}

// Latest returns the most recent request for the email regardless of
// state, or nil when none exists. Used for cooldown checks.
func (r *OTPRepository) Latest(ctx context.Context, email string) (*models.OTPRequest, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: otpPK(email)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})

	if err != nil {
		return nil, fmt.Errorf("failed to query latest OTP request: %w", err)
	}

	if len(result.Items) == 0 {
		return nil, nil
	}

	var otp models.OTPRequest
	if err := attributevalue.UnmarshalMap(result.Items[0], &otp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP request: %w", err)
	}

	return &otp, nil
}

// LatestEligible returns the most recent request that is still unused and
// unexpired, or nil when none qualifies.
func (r *OTPRepository) LatestEligible(ctx context.Context, email string, now time.Time) (*models.OTPRequest, error) {
	var startKey map[string]types.AttributeValue

	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: otpPK(email)},
			},
			ScanIndexForward:  aws.Bool(false),
			Limit:             aws.Int32(25),
			ExclusiveStartKey: startKey,
		})

		if err != nil {
			return nil, fmt.Errorf("failed to query OTP requests: %w", err)
		}

		for _, item := range result.Items {
			var otp models.OTPRequest
			if err := attributevalue.UnmarshalMap(item, &otp); err != nil {
				return nil, fmt.Errorf("failed to unmarshal OTP request: %w", err)
			}
			if !otp.IsUsed() && !otp.IsExpired(now) {
				return &otp, nil
			}
		}

		if len(result.LastEvaluatedKey) == 0 {
			return nil, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

// CountSince counts requests created strictly after the given instant.
func (r *OTPRepository) CountSince(ctx context.Context, email string, since time.Time) (int, error) {
	var (
		total    int
		startKey map[string]types.AttributeValue
	)

	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND SK > :sk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: otpPK(email)},
				":sk": &types.AttributeValueMemberS{Value: fmt.Sprintf("REQ#%020d", since.UnixNano())},
			},
			Select:            types.SelectCount,
			ExclusiveStartKey: startKey,
		})

		if err != nil {
			return 0, fmt.Errorf("failed to count OTP requests: %w", err)
		}

		total += int(result.Count)

		if len(result.LastEvaluatedKey) == 0 {
			return total, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

// IncrementAttempts bumps the attempt counter unless the row was consumed
// in the meantime; a lost race leaves the counter frozen, which is fine
// because a used row is no longer verifiable.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, otp *models.OTPRequest) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: otpPK(otp.Email)},
			"SK": &types.AttributeValueMemberS{Value: otpSK(otp.CreatedAt, otp.ID)},
		},
		UpdateExpression:    aws.String("ADD attempts :one"),
		ConditionExpression: aws.String("attribute_not_exists(used_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})

	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil
		}
		r.logger.WithError(err).Error("Failed to increment OTP attempts")
		return fmt.Errorf("failed to increment attempts: %w", err)
	}

	return nil
}

// MarkUsed consumes the row with a single conditional write. Exactly one
// of any number of concurrent callers succeeds; the rest get
// ErrCodeConsumed.
func (r *OTPRepository) MarkUsed(ctx context.Context, otp *models.OTPRequest, usedAt time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: otpPK(otp.Email)},
			"SK": &types.AttributeValueMemberS{Value: otpSK(otp.CreatedAt, otp.ID)},
		},
		UpdateExpression:    aws.String("SET used_at = :t"),
		ConditionExpression: aws.String("attribute_not_exists(used_at)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: usedAt.Format(time.RFC3339Nano)},
		},
	})

	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrCodeConsumed
		}
		r.logger.WithError(err).Error("Failed to mark OTP request used")
		return fmt.Errorf("failed to mark OTP request used: %w", err)
	}

	return nil
}
