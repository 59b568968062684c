package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/Nao-Mk2/isp-log-reporter/internal/model"
)

// PutLogEvents limits.
const (
	maxBatchEvents = 10000
	maxBatchBytes  = 1_048_576
	eventOverhead  = 26
)

// LogsAPI is the subset of CloudWatch Logs API we use.
type LogsAPI interface {
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// Archiver ships report lines to a CloudWatch Logs group.
type Archiver struct {
	client LogsAPI
	group  string
}

// New creates an Archiver for group.
func New(client LogsAPI, group string) *Archiver {
	return &Archiver{client: client, group: group}
}

// StreamName names the log stream for one run.
func StreamName(timestamp, runID string) string {
	return timestamp + "-" + runID
}

// Ship creates stream (tolerating an existing one) and uploads lines stamped with at.
// It returns the number of PutLogEvents calls made.
func (a *Archiver) Ship(ctx context.Context, stream string, at time.Time, lines []model.LogLine) (int, error) {
	if a.group == "" {
		return 0, errors.New("no log group configured")
	}
	_, err := a.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(a.group),
		LogStreamName: aws.String(stream),
	})
	var exists *types.ResourceAlreadyExistsException
	if err != nil && !errors.As(err, &exists) {
		return 0, fmt.Errorf("create log stream %s/%s: %w", a.group, stream, err)
	}

	calls := 0
	for _, batch := range Batches(lines, at) {
		_, err := a.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(a.group),
			LogStreamName: aws.String(stream),
			LogEvents:     batch,
		})
		if err != nil {
			return calls, fmt.Errorf("put log events %s/%s: %w", a.group, stream, err)
		}
		calls++
	}
	return calls, nil
}

// Batches splits lines into PutLogEvents-sized batches, all stamped with at.
func Batches(lines []model.LogLine, at time.Time) [][]types.InputLogEvent {
	ts := at.UnixMilli()
	var (
		batches [][]types.InputLogEvent
		cur     []types.InputLogEvent
		size    int
	)
	for _, l := range lines {
		n := len(l) + eventOverhead
		if len(cur) > 0 && (len(cur) == maxBatchEvents || size+n > maxBatchBytes) {
			batches = append(batches, cur)
			cur, size = nil, 0
		}
		cur = append(cur, types.InputLogEvent{
			Message:   aws.String(string(l)),
			Timestamp: aws.Int64(ts),
		})
		size += n
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}
