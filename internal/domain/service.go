package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoLink       = errors.New("no YouTube link found")
	ErrNotQueued    = errors.New("link could not be queued")
	ErrNoSubscriber = fmt.Errorf("%w: no subscriber is listening", ErrNotQueued)
	ErrJobNotFound  = errors.New("job not found")
)

// BatchReport is a BatchResult after its links were published.
type BatchReport struct {
	BatchResult
	// Unqueued holds links that were found but could not be published.
	Unqueued []Link
}

// Queued returns the number of links handed to the broker.
func (r BatchReport) Queued() int {
	return r.Succeeded() - len(r.Unqueued)
}

// AllQueued reports whether every non-empty line ended up on the broker.
func (r BatchReport) AllQueued() bool {
	return r.AllMatched() && len(r.Unqueued) == 0
}

// Dispatcher turns text into published links.
type Dispatcher struct {
	pub Publisher
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(pub Publisher) *Dispatcher {
	return &Dispatcher{pub: pub}
}

// Publish hands a single link to the broker. It fails unless at least one
// subscriber received the message.
func (d *Dispatcher) Publish(ctx context.Context, link Link) error {
	receivers, err := d.pub.Publish(ctx, link)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotQueued, err)
	}
	if receivers == 0 {
		return ErrNoSubscriber
	}
	return nil
}

// Dispatch extracts a link from text and publishes it.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) (Link, error) {
	link, ok := ExtractLink(text)
	if !ok {
		return "", ErrNoLink
	}
	if err := d.Publish(ctx, link); err != nil {
		return link, err
	}
	return link, nil
}

// DispatchBatch scans text line by line and publishes every link found.
// A failed publish does not stop the batch.
func (d *Dispatcher) DispatchBatch(ctx context.Context, text string) BatchReport {
	report := BatchReport{BatchResult: ProcessText(text)}
	for _, link := range report.Links {
		if err := d.Publish(ctx, link); err != nil {
			report.Unqueued = append(report.Unqueued, link)
		}
	}
	return report
}
