package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"inbound-backend/internal/bootstrap"
	"inbound-backend/internal/queue"
	"inbound-backend/internal/shared/config"
	"inbound-backend/internal/shared/metrics"
	"inbound-backend/internal/shared/telemetry"
	"inbound-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	built, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda_worker.bootstrap_failed", map[string]any{"error": initErr.Error()})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}

	return events.SQSEventResponse{BatchItemFailures: processRecords(ctx, app.WorkerDeps, event.Records)}, nil
}

// processRecords reports only retryable failures. Unrecoverable records are logged and
// left out of the failure list so SQS deletes them.
func processRecords(ctx context.Context, deps workerproc.Deps, records []events.SQSMessage) []events.SQSBatchItemFailure {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range records {
		metrics.IncTasksReceived()
		fields := map[string]any{
			"sqs_message_id": record.MessageId,
			"receive_count":  queue.ReceiveCount(record.Attributes),
		}
		err := workerproc.HandleMessage(ctx, deps, []byte(record.Body))
		switch {
		case err == nil:
			telemetry.Info("lambda_worker.task.completed", fields)
		case workerproc.Unrecoverable(err):
			fields["error"] = err.Error()
			telemetry.Error("lambda_worker.task.unrecoverable", fields)
			metrics.IncTaskDeletedUnrecoverable()
		default:
			fields["error"] = err.Error()
			telemetry.Error("lambda_worker.task.failed", fields)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return failures
}

func main() {
	lambda.Start(handler)
}
