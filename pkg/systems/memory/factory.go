package memory

import (
	"sync"

	"github.com/cuemby/streamcontainer/pkg/config"
	"github.com/cuemby/streamcontainer/pkg/consumer"
	"github.com/cuemby/streamcontainer/pkg/producer"
)

var (
	brokersMu sync.Mutex
	brokers   = map[string]*Broker{}
)

// BrokerFor returns the shared Broker for a broker id, creating one the
// first time it's requested. A consumer and a producer for the same
// "memory" system must resolve to the same Broker for writes on one to
// become visible on the other, so both factories below key off the same
// id.
func BrokerFor(id string) *Broker {
	brokersMu.Lock()
	defer brokersMu.Unlock()
	b, ok := brokers[id]
	if !ok {
		b = NewBroker()
		brokers[id] = b
	}
	return b
}

// brokerID reads the "memory.broker" key from a system's config subtree,
// defaulting to "default" so a CONFIG document that never mentions it
// still gets one shared broker per process.
func brokerID(cfg config.View) string {
	return cfg.GetString("memory.broker", "default")
}

// ConsumerFactory is registered under the "memory" name in
// registry.Registry.Consumers, for CONFIG documents that set
// systems.<name>.samza.factory = memory.
func ConsumerFactory(cfg config.View) (consumer.SystemConsumer, error) {
	return NewConsumer(BrokerFor(brokerID(cfg)), brokerID(cfg)), nil
}

// ProducerFactory is registered under the "memory" name in
// registry.Registry.Producers.
func ProducerFactory(cfg config.View) (producer.SystemProducer, error) {
	return NewProducer(BrokerFor(brokerID(cfg))), nil
}
