package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const (
	sqsMaxMessages      = 10
	sqsWaitTimeSeconds  = 20
	attrApproxReceiveCt = "ApproximateReceiveCount"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSOptions configures the SQS backend.
type SQSOptions struct {
	QueueURL          string
	Region            string
	VisibilitySeconds int
}

// SQSClient enqueues tasks on, and consumes them from, an AWS SQS queue.
type SQSClient struct {
	client     sqsAPI
	queueURL   string
	visibility int32
}

// NewSQSClient constructs an SQS-backed queue client.
func NewSQSClient(ctx context.Context, opts SQSOptions) (*SQSClient, error) {
	queueURL := strings.TrimSpace(opts.QueueURL)
	if queueURL == "" {
		return nil, fmt.Errorf("SQS_QUEUE_URL is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newSQSWithClient(sqs.NewFromConfig(cfg), queueURL, opts.VisibilitySeconds), nil
}

func newSQSWithClient(client sqsAPI, queueURL string, visibilitySeconds int) *SQSClient {
	return &SQSClient{
		client:     client,
		queueURL:   queueURL,
		visibility: int32(visibilitySeconds),
	}
}

// Enqueue delivers a task to the configured SQS queue.
func (s *SQSClient) Enqueue(ctx context.Context, name string, args ...any) (TaskHandle, error) {
	task, payload, err := newTask(ctx, name, args)
	if err != nil {
		return TaskHandle{}, fmt.Errorf("encode sqs task: %w", err)
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"task": {DataType: aws.String("String"), StringValue: aws.String(task.Name)},
		},
	})
	if err != nil {
		return TaskHandle{}, fmt.Errorf("sqs send message: %w", err)
	}
	return TaskHandle{ID: task.ID}, nil
}

// Receive long-polls the queue for up to ten deliveries.
func (s *SQSClient) Receive(ctx context.Context) ([]Delivery, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(s.queueURL),
		MaxNumberOfMessages:         sqsMaxMessages,
		WaitTimeSeconds:             sqsWaitTimeSeconds,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
	}
	if s.visibility > 0 {
		input.VisibilityTimeout = s.visibility
	}
	resp, err := s.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("sqs receive message: %w", err)
	}

	out := make([]Delivery, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		out = append(out, Delivery{
			ID:           aws.ToString(msg.MessageId),
			Body:         []byte(aws.ToString(msg.Body)),
			ReceiveCount: ReceiveCount(msg.Attributes),
			receipt:      aws.ToString(msg.ReceiptHandle),
		})
	}
	return out, nil
}

// Ack deletes the delivery from the queue.
func (s *SQSClient) Ack(ctx context.Context, d Delivery) error {
	if d.receipt == "" {
		return fmt.Errorf("missing receipt handle")
	}
	if _, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(d.receipt),
	}); err != nil {
		return fmt.Errorf("sqs delete message: %w", err)
	}
	return nil
}

// ReceiveCount reads ApproximateReceiveCount from SQS message attributes.
func ReceiveCount(attrs map[string]string) int {
	if attrs == nil {
		return 0
	}
	raw := attrs[attrApproxReceiveCt]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

var (
	_ Client   = (*SQSClient)(nil)
	_ Consumer = (*SQSClient)(nil)
)
