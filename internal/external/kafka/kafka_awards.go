package rewards

import (
	"context"
	"fmt"
	"os"

	"github.com/segmentio/kafka-go"
)

// Читатель событий начисления (завершенные бронирования, промо)
type KafkaAwards struct {
	reader *kafka.Reader
}

func GetNewReader(topic string) (reader *KafkaAwards, err error) {
	// config
	kafkaurl := os.Getenv("KAFKA_AWARDS_URL")
	if kafkaurl == "" {
		return nil, fmt.Errorf("env KAFKA_AWARDS_URL is not set")
	}
	kafkaport := os.Getenv("KAFKA_AWARDS_PORT")
	if kafkaport == "" {
		return nil, fmt.Errorf("env KAFKA_AWARDS_PORT is not set")
	}

	kafkaconfig := kafka.ReaderConfig{
		Brokers: []string{kafkaurl + ":" + kafkaport},
		Topic:   topic,
		GroupID: "awards_loyalty",
	}
	return &KafkaAwards{kafka.NewReader(kafkaconfig)}, nil
}

func (k *KafkaAwards) GetNewMessage(ctx context.Context) (eventJson string, err error) {
	msg, err := k.reader.ReadMessage(ctx)
	if err != nil {
		return "", err
	}
	return string(msg.Value), nil
}

func (k *KafkaAwards) CloseReader() {
	k.reader.Close()
}
