package queue

import (
	"context"
	"encoding/json"
	"log"

	"github.com/IBM/sarama"

	"inboxsync/internal/domain"
)

const clientID = "inboxsync"

type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &Kafka{
		producer: producer,
		topic:    topic,
	}, nil
}

// Publish keys events by source id so one source's events stay ordered
// within a partition.
func (k *Kafka) Publish(ctx context.Context, ev domain.MessageEvent) error {
	msg, err := encodeEvent(k.topic, ev)
	if err != nil {
		return err
	}

	_, _, err = k.producer.SendMessage(msg)
	return err
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}

func encodeEvent(topic string, ev domain.MessageEvent) (*sarama.ProducerMessage, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(ev.SourceID),
		Value: sarama.ByteEncoder(data),
	}, nil
}

func decodeEvent(data []byte) (domain.MessageEvent, error) {
	var ev domain.MessageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.MessageEvent{}, err
	}
	if ev.SourceID == "" {
		ev.SourceID = ev.Message.SourceID
	}
	return ev, nil
}

// KafkaConsumer reads events as a member of a consumer group. An event is
// committed once its handler succeeds; undecodable events are committed and
// skipped so they cannot wedge a partition.
type KafkaConsumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler Handler
}

func NewKafkaConsumer(brokers []string, groupID, topic string) (*KafkaConsumer, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &KafkaConsumer{
		group: group,
		topic: topic,
	}, nil
}

// Consume blocks until ctx is done, rejoining the group after each
// rebalance.
func (c *KafkaConsumer) Consume(ctx context.Context, handler Handler) error {
	c.handler = handler

	for ctx.Err() == nil {
		if err := c.group.Consume(ctx, []string{c.topic}, c); err != nil {
			return err
		}
	}
	return nil
}

func (c *KafkaConsumer) Close() error {
	return c.group.Close()
}

func (c *KafkaConsumer) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (c *KafkaConsumer) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (c *KafkaConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			ev, err := decodeEvent(msg.Value)
			if err != nil {
				log.Printf("[ERROR] skip event at %s/%d offset %d: %v", msg.Topic, msg.Partition, msg.Offset, err)
				session.MarkMessage(msg, "")
				continue
			}

			if err := c.handler(ctx, ev); err != nil {
				log.Printf("[ERROR] handle event for source %s: %v", ev.SourceID, err)
				continue
			}
			session.MarkMessage(msg, "")
		}
	}
}
