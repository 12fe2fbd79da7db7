// Package usage tells the external metering system about consumed usage. It
// is best effort: nothing here can fail the request that consumed the usage.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/Tariqlearnstocode/appchecker-sub001/internal/pkg/jobqueue"
)

const defaultAttemptTimeout = 10 * time.Second

// Enqueuer is the slice of the job queue the reporter needs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// Reporter forwards usage to a Meter, through the job queue when one is configured.
type Reporter struct {
	meter   Meter
	queue   Enqueuer
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewReporter builds a reporter. queue may be nil, in which case each report
// is a single attempt on a detached goroutine.
func NewReporter(meter Meter, queue Enqueuer) *Reporter {
	return &Reporter{
		meter:   meter,
		queue:   queue,
		timeout: defaultAttemptTimeout,
		now:     time.Now,
	}
}

// Report records one unit of usage for a verification. It never blocks on the
// metering system and never returns an error.
func (r *Reporter) Report(ctx context.Context, accountID, verificationID uint, customerID string) {
	if customerID == "" {
		log.Infof("[UsageReporter] Skipping verification %d: account %d has no processor customer", verificationID, accountID)
		return
	}

	payload := jobqueue.UsageReportJobPayload{
		AccountID:        accountID,
		VerificationID:   verificationID,
		StripeCustomerID: customerID,
	}

	if r.queue != nil {
		_, err := r.queue.EnqueueJob(ctx, jobqueue.JobTypeUsageReport, payload.ToMap())
		if err == nil {
			return
		}
		log.Warnf("[UsageReporter] Enqueue failed for verification %d, sending directly: %v", verificationID, err)
	}

	ev := Event{AccountID: accountID, VerificationID: verificationID, CustomerID: customerID, Value: 1, Timestamp: r.now()}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		attemptCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.meter.Report(attemptCtx, ev); err != nil {
			log.Errorf("[UsageReporter] Failed to report usage for verification %d: %v", verificationID, err)
		}
	}()
}

// HandleJob is the job queue handler for usage_report jobs.
func (r *Reporter) HandleJob(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.UsageReportJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("decode usage payload: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.meter.Report(attemptCtx, Event{
		AccountID:      payload.AccountID,
		VerificationID: payload.VerificationID,
		CustomerID:     payload.StripeCustomerID,
		Value:          1,
		Timestamp:      job.CreatedAt,
	})
}

// Wait blocks until direct attempts started by Report have finished.
func (r *Reporter) Wait() {
	r.wg.Wait()
}
