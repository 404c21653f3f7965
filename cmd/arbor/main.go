// Command arbor is the Lambda entrypoint serving the item API.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/arbor/api"
	"github.com/jacentio/arbor/items"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}

	cfg := items.DefaultConfig()
	if table := os.Getenv("ARBOR_TABLE"); table != "" {
		cfg.TableName = table
	}

	store := items.New(dynamodb.NewFromConfig(awsCfg), cfg)
	handler := api.NewHandler(store, logger)

	lambda.Start(handler.Handle)
}
