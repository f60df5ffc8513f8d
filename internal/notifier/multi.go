package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Multi fans a message out to several notifiers concurrently. Every notifier
// is attempted; the joined failures are returned.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Name() string {
	names := make([]string, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		names = append(names, n.Name())
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m *Multi) Send(ctx context.Context, msg Message) error {
	if len(m.notifiers) == 0 {
		return nil
	}

	errs := make([]error, len(m.notifiers))
	var wg sync.WaitGroup
	for i, n := range m.notifiers {
		wg.Add(1)
		go func(i int, n Notifier) {
			defer wg.Done()
			errs[i] = n.Send(ctx, msg)
		}(i, n)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return deliveryError(m.Name(), err)
	}
	return nil
}
