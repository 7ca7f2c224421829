package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("kafka writer", func() {
	newEvent := func() cloudevents.Event {
		e := cloudevents.NewEvent()
		e.SetID("1")
		e.SetSource(defaultSource)
		e.SetType(completedKind)
		e.SetSubject("projects/p1/jobs/1")
		_ = e.SetData(cloudevents.ApplicationJSON, []byte(`{"status":"completed"}`))
		return e
	}

	newConfig := func() *sarama.Config {
		cfg := sarama.NewConfig()
		cfg.Producer.Return.Successes = true
		return cfg
	}

	It("sends the event as structured json", func() {
		producer := mocks.NewSyncProducer(GinkgoT(), newConfig())
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var got map[string]any
			if err := json.Unmarshal(val, &got); err != nil {
				return err
			}
			if got["type"] != completedKind {
				return errors.New("unexpected type")
			}
			return nil
		})

		w := newKafkaWriter(producer)
		Expect(w.Write(context.TODO(), "jobs", newEvent())).To(Succeed())
		Expect(w.Close(context.TODO())).To(Succeed())
	})

	It("returns the send error", func() {
		producer := mocks.NewSyncProducer(GinkgoT(), newConfig())
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		w := newKafkaWriter(producer)
		err := w.Write(context.TODO(), "jobs", newEvent())
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, sarama.ErrOutOfBrokers)).To(BeTrue())
		Expect(w.Close(context.TODO())).To(Succeed())
	})

	It("rejects an invalid version", func() {
		_, err := NewKafkaWriter([]string{"localhost:9092"}, "test", "not-a-version")
		Expect(err).To(HaveOccurred())
	})
})
