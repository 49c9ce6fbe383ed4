package events

import (
	"fmt"

	"github.com/noah-isme/groupchat-api/internal/config"
)

// Open builds the publisher selected by cfg.EventsDriver.
func Open(cfg config.Config) (Publisher, error) {
	switch cfg.EventsDriver {
	case config.EventsDriverKafka:
		publisher, err := NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case config.EventsDriverAMQP:
		publisher, err := NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case config.EventsDriverNone, "":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unsupported events driver %q", cfg.EventsDriver)
	}
}
