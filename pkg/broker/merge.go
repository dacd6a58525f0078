package broker

import (
	"sync"
	"time"
)

const (
	// mergeBuffer is the capacity of the merged output channel.
	mergeBuffer = 4096

	// mergeIdleWait is the scheduler yield taken when no input holds a
	// message. It exists purely to let producer goroutines deliver.
	mergeIdleWait = time.Millisecond
)

// Listen subscribes to several topics under one description and merges them
// into a single stream tagged with the index of each message's topic.
//
// Among messages observed before emission the stream is ordered by broker
// timestamp: each round the merge polls every empty slot without blocking,
// then emits the held message with the smallest timestamp. A silent input
// never delays a ready one, so a late-arriving low-timestamp message may
// follow a higher one already emitted. The projections downstream are
// idempotent precisely to absorb that.
func (f *Fanout) Listen(topics []string, description string) (Stream, error) {
	subs := make([]*Subscription, 0, len(topics))
	inputs := make([]<-chan Message, 0, len(topics))
	for _, topic := range topics {
		sub, err := f.Subscribe(topic, description)
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return nil, err
		}
		subs = append(subs, sub)
		inputs = append(inputs, sub.C())
	}

	closers := make([]func(), len(subs))
	for i, s := range subs {
		closers[i] = s.Close
	}
	m := newMerged(inputs, closers)
	go m.run()
	return m, nil
}

type merged struct {
	inputs  []<-chan Message
	closers []func()
	out     chan TopicMessage
	done    chan struct{}
	once    sync.Once
}

func newMerged(inputs []<-chan Message, closers []func()) *merged {
	return &merged{
		inputs:  inputs,
		closers: closers,
		out:     make(chan TopicMessage, mergeBuffer),
		done:    make(chan struct{}),
	}
}

func (m *merged) C() <-chan TopicMessage { return m.out }

// Close stops the merge and releases the underlying subscriptions.
func (m *merged) Close() {
	m.once.Do(func() { close(m.done) })
}

// run is the k-way merge loop. Slot state is a per-input latch: nil means
// empty, non-nil holds the next message of that input.
func (m *merged) run() {
	defer close(m.out)
	defer func() {
		for _, c := range m.closers {
			c()
		}
	}()

	held := make([]*Message, len(m.inputs))
	open := make([]bool, len(m.inputs))
	for i := range open {
		open[i] = true
	}

	for {
		select {
		case <-m.done:
			return
		default:
		}

		for i, ch := range m.inputs {
			if held[i] != nil || !open[i] {
				continue
			}
			select {
			case msg, ok := <-ch:
				if !ok {
					open[i] = false
					continue
				}
				held[i] = &msg
			default:
			}
		}

		// Empty slots sort greater than held ones: any ready message
		// beats a silent input.
		best := -1
		for i, h := range held {
			if h != nil && (best == -1 || h.Timestamp < held[best].Timestamp) {
				best = i
			}
		}

		if best == -1 {
			alive := false
			for _, o := range open {
				if o {
					alive = true
					break
				}
			}
			if !alive {
				return
			}
			select {
			case <-m.done:
				return
			case <-time.After(mergeIdleWait):
			}
			continue
		}

		select {
		case m.out <- TopicMessage{TopicIndex: best, Message: *held[best]}:
			held[best] = nil
		case <-m.done:
			return
		}
	}
}
