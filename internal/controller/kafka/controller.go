package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	kafkapc "github.com/agrovision/leaf-diagnosis/internal/infrastructure/kafka"
	"github.com/agrovision/leaf-diagnosis/internal/usecase"
	"github.com/agrovision/leaf-diagnosis/pkg/logger"
	"github.com/agrovision/leaf-diagnosis/pkg/types/errs"
	"github.com/segmentio/kafka-go"
)

type KafkaController struct {
	inf    usecase.InferenceUseCase
	diag   usecase.DiagnosisUseCase
	ec     *kafkapc.EventConsumer
	logger logger.Interface

	commitTimeout  time.Duration
	processTimeout time.Duration
	inferTimeout   time.Duration

	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	started atomic.Bool
}

func New(
	inf usecase.InferenceUseCase,
	diag usecase.DiagnosisUseCase,
	ec *kafkapc.EventConsumer,
	l logger.Interface,
	commitTimeout time.Duration,
	processTimeout time.Duration,
	inferTimeout time.Duration,
	workers int,
) *KafkaController {
	return &KafkaController{
		inf:            inf,
		diag:           diag,
		ec:             ec,
		logger:         l,
		commitTimeout:  commitTimeout,
		processTimeout: processTimeout,
		inferTimeout:   inferTimeout,
		workers:        workers,
	}
}

func (c *KafkaController) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("KafkaController - Start - controller already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	tasks := make(chan kafka.Message, c.workers*2)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(tasks)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(tasks)

		for {
			select {
			case <-c.ctx.Done():
				return
			default:
				// 1. read from kafka
				event, err := c.ec.ReadEvent(c.ctx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						c.logger.Error(err, "KafkaController - Start - c.ec.ReadEvent")
					}
					continue
				}

				// 2. hand over to a worker
				select {
				case tasks <- event:
				case <-c.ctx.Done():
					return
				}
			}
		}
	}()

	return nil
}

func (c *KafkaController) classifyDiagnosis(ctx context.Context, event kafka.Message) error {
	var payload DiagnosisEventPayload
	err := json.Unmarshal(event.Value, &payload)
	if err != nil {
		return fmt.Errorf("KafkaController - classifyDiagnosis - json.Unmarshal: %w", err)
	}

	// 1. pull the image from S3
	data, err := c.diag.DownloadImageBytes(ctx, payload.StorageKey)
	if err != nil {
		return fmt.Errorf("KafkaController - classifyDiagnosis - c.diag.DownloadImageBytes: %w", err)
	}

	// 2. run the model under its own deadline
	inferCtx, inferCancel := context.WithTimeout(ctx, c.inferTimeout)
	defer inferCancel()
	prediction, err := c.inf.Classify(inferCtx, data)
	if err != nil {
		return fmt.Errorf("KafkaController - classifyDiagnosis - c.inf.Classify: %w", err)
	}

	// 3. record the verdict; a synchronous diagnose call may have won the race,
	// that outcome is the one we wanted anyway
	_, err = c.diag.RecordAutomatic(ctx, payload.DiagnosisID, prediction)
	if err != nil && !errors.Is(err, errs.ErrAlreadyClassified) {
		return fmt.Errorf("KafkaController - classifyDiagnosis - c.diag.RecordAutomatic: %w", err)
	}

	return nil
}

func (c *KafkaController) worker(tasks <-chan kafka.Message) {
	defer c.wg.Done()

	for event := range tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error(fmt.Errorf("panic %v", r), "KafkaController - worker - panic")
				}
			}()

			processCtx, processCancel := context.WithTimeout(c.ctx, c.processTimeout)
			err := c.classifyDiagnosis(processCtx, event)
			processCancel()
			if err != nil {
				c.logger.Error(err, "KafkaController - worker - c.classifyDiagnosis")

				// transient storage errors are retried from the offset, the
				// record stays pending until a later attempt lands
				if errs.IsTransient(err) {
					return
				}
			}

			// broken payloads and permanent errors are committed past,
			// the mark-failed sweep catches their records
			commitCtx, commitCancel := context.WithTimeout(c.ctx, c.commitTimeout)
			err = c.ec.CommitEvent(commitCtx, event)
			commitCancel()
			if err != nil {
				c.logger.Error(err, "KafkaController - worker - c.ec.CommitEvent")
			}
		}()
	}
}

func (c *KafkaController) Shutdown(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})

	go func() {
		c.wg.Wait()
		c.ec.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
