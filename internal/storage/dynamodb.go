package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/robertramos07281021/centralize-coordinator/internal/domain"
	"github.com/rs/zerolog"
)

// DynamoDBStore implements Store using AWS DynamoDB
type DynamoDBStore struct {
	client *dynamodb.Client
	config DynamoConfig
	logger zerolog.Logger
}

// NewDynamoDBStore creates a new DynamoDB store
func NewDynamoDBStore(ctx context.Context, cfg DynamoConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	var client *dynamodb.Client

	if cfg.Mode == DynamoModeLocal {
		// For local mode, build the client directly without LoadDefaultConfig.
		// LoadDefaultConfig probes the EC2 IMDS endpoint which hangs on EC2
		// instances when static credentials are intended.
		client = dynamodb.New(dynamodb.Options{
			Region:       cfg.Region,
			BaseEndpoint: aws.String(cfg.Endpoint),
			Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}

	store := &DynamoDBStore{
		client: client,
		config: cfg,
		logger: logger,
	}

	// Create tables in local mode
	if cfg.Mode == DynamoModeLocal {
		if err := CreateTablesIfNotExist(ctx, client, cfg, logger); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("mode", string(cfg.Mode)).
		Str("region", cfg.Region).
		Msg("DynamoDB store initialized")

	return store, nil
}

func (s *DynamoDBStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.AgentsTable),
		Key: map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %s: %w", agentID, err)
	}
	if result.Item == nil {
		return nil, domain.ErrNotFound
	}

	var agent domain.Agent
	if err := attributevalue.UnmarshalMap(result.Item, &agent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent: %w", err)
	}
	return &agent, nil
}

func (s *DynamoDBStore) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	var agents []domain.Agent
	var lastKey map[string]dbtypes.AttributeValue

	for {
		input := &dynamodb.ScanInput{TableName: aws.String(s.config.AgentsTable)}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agents: %w", err)
		}

		var page []domain.Agent
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agents: %w", err)
		}
		agents = append(agents, page...)

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}
	return agents, nil
}

func (s *DynamoDBStore) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.config.CampaignsTable),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan campaigns: %w", err)
	}

	var campaigns []domain.Campaign
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &campaigns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal campaigns: %w", err)
	}
	return campaigns, nil
}

func (s *DynamoDBStore) SetAgentSession(ctx context.Context, agentID, token string) error {
	update := expression.Set(expression.Name("Online"), expression.Value(true)).
		Set(expression.Name("SessionToken"), expression.Value(token))
	return s.updateAgent(ctx, agentID, update)
}

func (s *DynamoDBStore) SetAgentOffline(ctx context.Context, agentID string) error {
	update := expression.Set(expression.Name("Online"), expression.Value(false)).
		Set(expression.Name("SessionToken"), expression.Value(""))
	return s.updateAgent(ctx, agentID, update)
}

func (s *DynamoDBStore) SetAgentClaim(ctx context.Context, agentID, accountID string) error {
	update := expression.Set(expression.Name("ClaimedAccountID"), expression.Value(accountID))
	return s.updateAgent(ctx, agentID, update)
}

func (s *DynamoDBStore) updateAgent(ctx context.Context, agentID string, update expression.UpdateBuilder) error {
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.AgentsTable),
		Key: map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to update agent %s: %w", agentID, err)
	}
	return nil
}

func (s *DynamoDBStore) GetProductionEntry(ctx context.Context, agentID, date string) (*domain.ProductionEntry, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.ProductionTable),
		Key: map[string]dbtypes.AttributeValue{
			"AgentID": &dbtypes.AttributeValueMemberS{Value: agentID},
			"Date":    &dbtypes.AttributeValueMemberS{Value: date},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get production entry: %w", err)
	}
	if result.Item == nil {
		return nil, domain.ErrNotFound
	}

	var entry domain.ProductionEntry
	if err := attributevalue.UnmarshalMap(result.Item, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal production entry: %w", err)
	}
	return &entry, nil
}

func (s *DynamoDBStore) PutProductionEntry(ctx context.Context, entry domain.ProductionEntry) error {
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal production entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.ProductionTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save production entry: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.AccountsTable),
		Key: map[string]dbtypes.AttributeValue{
			"AccountID": &dbtypes.AttributeValueMemberS{Value: accountID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", accountID, err)
	}
	if result.Item == nil {
		return nil, domain.ErrNotFound
	}

	var account domain.Account
	if err := attributevalue.UnmarshalMap(result.Item, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &account, nil
}

// ClaimAccount sets ClaimedBy conditionally. The condition expression is
// what keeps the single-owner invariant correct across process instances.
func (s *DynamoDBStore) ClaimAccount(ctx context.Context, accountID, agentID string) error {
	cond := expression.Or(
		expression.AttributeNotExists(expression.Name("ClaimedBy")),
		expression.Name("ClaimedBy").Equal(expression.Value("")),
		expression.Name("ClaimedBy").Equal(expression.Value(agentID)),
	)
	update := expression.Set(expression.Name("ClaimedBy"), expression.Value(agentID))
	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.AccountsTable),
		Key: map[string]dbtypes.AttributeValue{
			"AccountID": &dbtypes.AttributeValueMemberS{Value: accountID},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.ErrAlreadyClaimed
		}
		return fmt.Errorf("failed to claim account %s: %w", accountID, err)
	}
	return nil
}

// ReleaseAccount clears ClaimedBy only if this agent holds the claim.
// A failed condition means someone else holds it (or nobody does), which
// release treats as already done.
func (s *DynamoDBStore) ReleaseAccount(ctx context.Context, accountID, agentID string) error {
	cond := expression.Name("ClaimedBy").Equal(expression.Value(agentID))
	update := expression.Set(expression.Name("ClaimedBy"), expression.Value(""))
	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.AccountsTable),
		Key: map[string]dbtypes.AttributeValue{
			"AccountID": &dbtypes.AttributeValueMemberS{Value: accountID},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("failed to release account %s: %w", accountID, err)
	}
	return nil
}

func (s *DynamoDBStore) TransferAccount(ctx context.Context, accountID, agentID string) error {
	update := expression.Set(expression.Name("ClaimedBy"), expression.Value(agentID))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.AccountsTable),
		Key: map[string]dbtypes.AttributeValue{
			"AccountID": &dbtypes.AttributeValueMemberS{Value: accountID},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to transfer account %s: %w", accountID, err)
	}
	return nil
}

func (s *DynamoDBStore) ListAssignedAccounts(ctx context.Context) ([]domain.Account, error) {
	filter := expression.And(
		expression.AttributeExists(expression.Name("AssignedUserID")),
		expression.Name("AssignedUserID").NotEqual(expression.Value("")),
	)
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var accounts []domain.Account
	var lastKey map[string]dbtypes.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName:                 aws.String(s.config.AccountsTable),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}
		if lastKey != nil {
			input.ExclusiveStartKey = lastKey
		}

		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assigned accounts: %w", err)
		}

		var page []domain.Account
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal accounts: %w", err)
		}
		accounts = append(accounts, page...)

		lastKey = result.LastEvaluatedKey
		if lastKey == nil {
			break
		}
	}
	return accounts, nil
}

func (s *DynamoDBStore) UnassignAccount(ctx context.Context, accountID string) error {
	update := expression.Set(expression.Name("AssignedUserID"), expression.Value(""))
	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.AccountsTable),
		Key: map[string]dbtypes.AttributeValue{
			"AccountID": &dbtypes.AttributeValueMemberS{Value: accountID},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("failed to unassign account %s: %w", accountID, err)
	}
	return nil
}

// NewStore creates the appropriate store based on configuration
func NewStore(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoDBStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("DynamoDB disabled (DYNAMO_MODE=none), using in-memory store")
		return NewMemoryStore(), nil
	}
}
