package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsSqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"ObjArchiver/internal/engine/archive"
	"ObjArchiver/internal/logger"
)

const (
	MsgSchemaVersion = "1"
	startupTimeout   = 20 * time.Second

	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var ErrMissingQueueURL = errors.New("sqs notifier: queue url is required")

type sqsSendMessageAPI interface {
	SendMessage(context.Context, *awsSqs.SendMessageInput, ...func(*awsSqs.Options)) (*awsSqs.SendMessageOutput, error)
}

type Message struct {
	SchemaVersion string  `json:"schema_version"`
	Status        string  `json:"status"`
	RunID         string  `json:"run_id"`
	Source        string  `json:"source"`
	Bucket        *Bucket `json:"bucket,omitempty"`
	Object        *Object `json:"object,omitempty"`
	Error         string  `json:"error,omitempty"`
}

type Bucket struct {
	Name   string `json:"name"`
	Region string `json:"region"`
}

type Object struct {
	Path            string `json:"path"`
	FullURL         string `json:"full_url"`
	SizeInBytes     int64  `json:"size_in_bytes"`
	CompressionType string `json:"compression_algorithm,omitempty"`
	Entries         int64  `json:"entries"`
	Skipped         int64  `json:"skipped"`
	Blake3          string `json:"blake3"`
}

type SQSConfig struct {
	URL      string
	Region   string
	Endpoint string
}

// SQS publishes one JSON message per run to a queue.
type SQS struct {
	log      *zap.SugaredLogger
	client   sqsSendMessageAPI
	queueURL string
	region   string
}

func NewSQS(log *zap.SugaredLogger, c SQSConfig) (*SQS, error) {
	if c.URL == "" {
		return nil, ErrMissingQueueURL
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(c.Endpoint))
	}
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("couldn't load default AWS configuration: %w", err)
	}
	return newSQS(log, awsSqs.NewFromConfig(sdkConfig), c), nil
}

func newSQS(log *zap.SugaredLogger, client sqsSendMessageAPI, c SQSConfig) *SQS {
	return &SQS{
		log:      log.With(logger.ComponentKey, "sqs-notifier"),
		client:   client,
		queueURL: c.URL,
		region:   c.Region,
	}
}

func (q *SQS) NotifySuccess(ctx context.Context, s *archive.Summary) error {
	return q.send(ctx, Message{
		SchemaVersion: MsgSchemaVersion,
		Status:        StatusSucceeded,
		RunID:         s.RunID,
		Source:        s.Source,
		Bucket:        &Bucket{Name: s.Bucket, Region: q.region},
		Object: &Object{
			Path:            s.Key,
			FullURL:         "s3://" + s.Bucket + "/" + s.Key,
			SizeInBytes:     s.ArchiveBytes,
			CompressionType: s.Compression,
			Entries:         s.ObjectsArchived,
			Skipped:         s.ObjectsSkipped,
			Blake3:          s.Digest,
		},
	})
}

func (q *SQS) NotifyFailure(ctx context.Context, runID, source string, runErr error) error {
	msg := Message{
		SchemaVersion: MsgSchemaVersion,
		Status:        StatusFailed,
		RunID:         runID,
		Source:        source,
	}
	if runErr != nil {
		msg.Error = runErr.Error()
	}
	return q.send(ctx, msg)
}

func (q *SQS) send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	q.log.Debugw("sending SQS message", "queue_url", q.queueURL, "status", msg.Status)
	out, err := q.client.SendMessage(ctx, &awsSqs.SendMessageInput{
		MessageBody: aws.String(string(body)),
		QueueUrl:    aws.String(q.queueURL),
	})
	if err != nil {
		return fmt.Errorf("send SQS message: %w", err)
	}
	q.log.Debugw("enqueued message on SQS", "message_id", aws.ToString(out.MessageId))
	return nil
}
