package worker

import (
	"context"
	"log"
	"time"

	"meetsync/dispatch"
)

// DispatchWorker is the background half of the delayed-dispatch protocol: it
// periodically claims and sends every scheduled message whose send time has
// passed. The claim transition makes the race against the immediate path
// safe.
type DispatchWorker struct {
	Scheduler *dispatch.Scheduler
	Logger    *log.Logger
}

func NewDispatchWorker(scheduler *dispatch.Scheduler, logger *log.Logger) *DispatchWorker {
	return &DispatchWorker{
		Scheduler: scheduler,
		Logger:    logger,
	}
}

func (dw *DispatchWorker) Start(ctx context.Context) {
	dw.Logger.Println("Dispatch worker started")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dw.Logger.Println("Dispatch worker shutting down...")
			return
		case <-ticker.C:
			dw.Scheduler.DispatchDue()
		}
	}
}
