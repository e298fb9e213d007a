package storage

import "os"

// DynamoMode represents the DynamoDB connection mode
type DynamoMode string

const (
	DynamoModeLocal DynamoMode = "local"
	DynamoModeAWS   DynamoMode = "aws"
	DynamoModeNone  DynamoMode = "none"
)

// DynamoConfig holds DynamoDB configuration
type DynamoConfig struct {
	Mode            DynamoMode
	Endpoint        string // for local mode
	Region          string
	AgentsTable     string
	CampaignsTable  string
	ProductionTable string
	AccountsTable   string
}

// LoadDynamoConfig loads DynamoDB config from environment
func LoadDynamoConfig() DynamoConfig {
	mode := DynamoMode(getEnv("DYNAMO_MODE", "none"))
	if mode != DynamoModeLocal && mode != DynamoModeAWS {
		mode = DynamoModeNone
	}

	return DynamoConfig{
		Mode:            mode,
		Endpoint:        getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
		Region:          getEnv("DYNAMO_REGION", "ap-southeast-1"),
		AgentsTable:     getEnv("DYNAMO_AGENTS_TABLE", "coordinator-agents"),
		CampaignsTable:  getEnv("DYNAMO_CAMPAIGNS_TABLE", "coordinator-campaigns"),
		ProductionTable: getEnv("DYNAMO_PRODUCTION_TABLE", "coordinator-production"),
		AccountsTable:   getEnv("DYNAMO_ACCOUNTS_TABLE", "coordinator-accounts"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
