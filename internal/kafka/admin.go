package kafka

import (
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
}

func NewClusterAdmin(c *Config) (sarama.ClusterAdmin, error) {
	return sarama.NewClusterAdmin(c.GetBrokers(), c.GetConfig())
}

// EnsureTopic creates the topic when the cluster does not have it. An
// existing topic is left as it is, even if its partition count differs.
func EnsureTopic(admin sarama.ClusterAdmin, spec TopicSpec, log zerolog.Logger) error {
	topics, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("error listing topics: %w", err)
	}
	if detail, ok := topics[spec.Name]; ok {
		if detail.NumPartitions != spec.Partitions {
			log.Warn().
				Str("topic", spec.Name).
				Int32("partitions", detail.NumPartitions).
				Int32("configured", spec.Partitions).
				Msg("topic exists with a different partition count")
		}
		return nil
	}

	err = admin.CreateTopic(spec.Name, &sarama.TopicDetail{
		NumPartitions:     spec.Partitions,
		ReplicationFactor: spec.ReplicationFactor,
	}, false)
	if err != nil && !isTopicExists(err) {
		return fmt.Errorf("error creating topic %s: %w", spec.Name, err)
	}

	log.Info().Str("topic", spec.Name).Int32("partitions", spec.Partitions).Msg("topic created")
	return nil
}

// isTopicExists covers another producer creating the topic between the
// listing and the create call.
func isTopicExists(err error) bool {
	var terr *sarama.TopicError
	if errors.As(err, &terr) && terr.Err == sarama.ErrTopicAlreadyExists {
		return true
	}
	return errors.Is(err, sarama.ErrTopicAlreadyExists)
}
