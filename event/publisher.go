// Package event is the in-process publish/subscribe bus. Runtime components
// subscribe to named topics; publishing fans the event out to every
// subscriber concurrently and waits for them, bounded by the topic timeout.
package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/linchenxuan/r2p2/log"
)

// Publisher holds the registered topics.
type Publisher struct {
	lock   sync.RWMutex
	topics map[string]*Topic
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{
		topics: make(map[string]*Topic),
	}
}

// NewTopic creates a topic. A topic must exist before anyone can subscribe
// to it. A timeout of zero means Publish waits for subscribers without
// bound.
func (p *Publisher) NewTopic(topicName string, timeout time.Duration) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.topics[topicName]; ok {
		return fmt.Errorf("topic %s already created", topicName)
	}
	p.topics[topicName] = &Topic{timeout: timeout}
	return nil
}

// RegisterSubscriber adds fn to the topic's subscription list.
func (p *Publisher) RegisterSubscriber(topicName string, fn Subscriber) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	topic, ok := p.topics[topicName]
	if !ok {
		return fmt.Errorf("topic %s not created", topicName)
	}

	topic.subscribers = append(topic.subscribers, fn)
	log.Info().Str("topic", topicName).Int("num", len(topic.subscribers)).Msg("subscriber added")
	return nil
}

// Publish runs every subscriber of the topic on its own goroutine and waits
// for them all, up to the topic timeout. On timeout the lagging subscribers
// keep running, but Publish returns so the caller is not wedged by one slow
// handler.
func (p *Publisher) Publish(topicName string, param any) error {
	p.lock.RLock()
	topic, ok := p.topics[topicName]
	var subs []Subscriber
	var timeout time.Duration
	if ok {
		subs = append(subs, topic.subscribers...)
		timeout = topic.timeout
	}
	p.lock.RUnlock()

	if !ok {
		return fmt.Errorf("topic %s not created", topicName)
	}

	log.Info().Str("topic", topicName).Int("num", len(subs)).Msg("publish event")

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(fn Subscriber) {
			defer wg.Done()
			fn(param)
		}(sub)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		log.Warn().Str("topic", topicName).Msg("publish timed out waiting for subscribers")
		return fmt.Errorf("publish %s: timed out after %s", topicName, timeout)
	}
}
