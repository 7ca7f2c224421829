package events

type ProducerOptions func(e *EventProducer)

func WithOutputTopic(topic string) ProducerOptions {
	return func(e *EventProducer) {
		e.topic = topic
	}
}

// WithBufferLimit bounds the number of events waiting for the writer.
func WithBufferLimit(limit int) ProducerOptions {
	return func(e *EventProducer) {
		e.buffer.limit = limit
	}
}

func WithSource(source string) ProducerOptions {
	return func(e *EventProducer) {
		e.source = source
	}
}
