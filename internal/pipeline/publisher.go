package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/anjelocrypto/fixture-vision-sub001/pkg/contracts/events"
)

// KafkaPublisher emits one PipelineRun report per finished job run.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
	}
	return &KafkaPublisher{writer: writer, log: log}
}

// PublishRun keys the message by job name so one job's reports stay
// ordered within a partition.
func (p *KafkaPublisher) PublishRun(ctx context.Context, run events.PipelineRun) error {
	value, err := json.Marshal(run)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(run.Job),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish pipeline run", zap.String("job", run.Job), zap.Error(err))
		return err
	}

	p.log.Debug("published pipeline run", zap.String("job", run.Job), zap.String("run_id", run.RunID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
