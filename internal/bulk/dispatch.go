package bulk

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog/log"
)

// Dispatcher starts a job without waiting for it to finish.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// LocalDispatcher runs jobs in a background goroutine of this process.
type LocalDispatcher struct {
	Runner *Runner
	// done, when set, receives each finished summary. Tests use it.
	done func(*Summary, error)
}

// Dispatch runs job detached from ctx's cancellation so the caller's
// request can return while generation continues.
func (d *LocalDispatcher) Dispatch(ctx context.Context, job Job) error {
	if len(job.Requests) == 0 {
		return ErrEmpty
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		sum, _, err := d.Runner.Run(detached, job)
		if err != nil {
			log.Error().Err(err).Str("jobId", job.ID).Msg("Bulk job failed")
		}
		if d.done != nil {
			d.done(sum, err)
		}
	}()
	return nil
}

// Invoker is the subset of *lambda.Client the Lambda dispatcher needs.
type Invoker interface {
	Invoke(ctx context.Context, params *lambdasvc.InvokeInput, optFns ...func(*lambdasvc.Options)) (*lambdasvc.InvokeOutput, error)
}

// LambdaDispatcher hands jobs to the worker Lambda with InvocationType=Event.
type LambdaDispatcher struct {
	client      Invoker
	functionARN string
}

// NewLambdaDispatcher creates a dispatcher for the worker function.
func NewLambdaDispatcher(client Invoker, functionARN string) *LambdaDispatcher {
	return &LambdaDispatcher{client: client, functionARN: functionARN}
}

// Dispatch sends job as the worker event payload.
func (d *LambdaDispatcher) Dispatch(ctx context.Context, job Job) error {
	if len(job.Requests) == 0 {
		return ErrEmpty
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal bulk job: %w", err)
	}

	log.Debug().Int("payloadSize", len(payload)).Str("jobId", job.ID).Msg("Invoking worker Lambda asynchronously")
	_, err = d.client.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName:   aws.String(d.functionARN),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("invoke worker lambda: %w", err)
	}
	log.Info().Str("jobId", job.ID).Int("total", len(job.Requests)).Msg("Bulk job dispatched")
	return nil
}
