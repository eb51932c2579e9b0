package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-checkout/pkg/outbox/registry"
)

type topicPublishers interface {
	Publisher(topic string) *gcppubsub.Publisher
}

// topicSink keeps one ordered publisher per topic. An ordered publisher
// pauses a key after a failed publish, so the key is resumed for the retry.
type topicSink struct {
	client topicPublishers

	mu   sync.Mutex
	pubs map[string]*gcppubsub.Publisher
}

func newTopicSink(client topicPublishers) *topicSink {
	return &topicSink{client: client, pubs: map[string]*gcppubsub.Publisher{}}
}

func (s *topicSink) Publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub, err := s.publisher(topic)
	if err != nil {
		return err
	}
	_, err = pub.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		pub.ResumePublish(msg.OrderingKey)
	}
	return err
}

func (s *topicSink) publisher(topic string) (*gcppubsub.Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.pubs[topic]; ok {
		return pub, nil
	}
	pub := s.client.Publisher(topic)
	if pub == nil {
		return nil, registry.Permanent(errors.New("no publisher for topic " + topic))
	}
	pub.EnableMessageOrdering = true
	s.pubs[topic] = pub
	return pub, nil
}

// Stop flushes and stops every publisher.
func (s *topicSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, pub := range s.pubs {
		pub.Stop()
		delete(s.pubs, topic)
	}
}
