package eventsvc

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
)

// KafkaPublisher publishes each event to `<prefix><topic>`, keyed by the event key.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	prefix   string
	logger   core.Logger
}

var _ core.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaProducer(conf core.KafkaConfig) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(conf.Brokers, config)
	return producer, errors.Wrap(err, "creating kafka producer")
}

func NewKafkaPublisher(producer sarama.SyncProducer, conf core.KafkaConfig, logger core.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, prefix: conf.TopicPrefix, logger: logger}
}

func (p *KafkaPublisher) Publish(_ context.Context, events ...core.Event) {
	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("encoding event "+event.Topic, errors.Wrap(err, "marshaling event"))
			continue
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.prefix + event.Topic,
			Key:   sarama.StringEncoder(event.Key),
			Value: sarama.ByteEncoder(data),
		})
	}
	if len(msgs) == 0 {
		return
	}
	if err := p.producer.SendMessages(msgs); err != nil {
		p.logger.Error("publishing events", errors.Wrap(err, "sending kafka messages"))
	}
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
