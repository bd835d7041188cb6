package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/drewfead/berlinale/internal/commands"
)

// Lambda only allows writes below /tmp.
const outputDir = "/tmp"

func lambdaHandler(ctx context.Context, request events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	format := request.QueryStringParameters["output"]
	if format == "" {
		format = "json"
	}
	outputPath := filepath.Join(outputDir, "programme."+format)

	args := []string{"berlinale", "--output", format}
	if maxPages := request.QueryStringParameters["max_pages"]; maxPages != "" {
		args = append(args, "--max-pages", maxPages)
	}
	args = append(args, outputPath)

	if err := commands.NewApp().RunContext(ctx, args); err != nil {
		return events.LambdaFunctionURLResponse{Body: "error", StatusCode: 500}, fmt.Errorf("failed to execute app: %v", err)
	}

	body, err := os.ReadFile(outputPath)
	if err != nil {
		return events.LambdaFunctionURLResponse{Body: "error", StatusCode: 500}, fmt.Errorf("failed to read output: %v", err)
	}

	contentType := "application/json; charset=utf-8"
	if format == "ics" {
		contentType = "text/calendar; charset=utf-8"
	}
	return events.LambdaFunctionURLResponse{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": contentType},
		Body:       string(body),
	}, nil
}

func main() {
	lambda.Start(lambdaHandler)
}
