package utils

import (
	"slices"

	"github.com/nats-io/nats.go"
)

// StreamConfigEqual reports whether the stream properties this service
// manages match. Subject order is ignored.
func StreamConfigEqual(a, b nats.StreamConfig) bool {
	if a.Name != b.Name ||
		a.Retention != b.Retention ||
		a.MaxMsgs != b.MaxMsgs ||
		a.MaxAge != b.MaxAge ||
		a.Storage != b.Storage {
		return false
	}

	as := slices.Clone(a.Subjects)
	bs := slices.Clone(b.Subjects)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}

// ConsumerConfigEqual reports whether the consumer properties this service
// manages match. A mismatch means the durable must be recreated.
func ConsumerConfigEqual(a, b nats.ConsumerConfig) bool {
	return a.Durable == b.Durable &&
		a.AckPolicy == b.AckPolicy &&
		a.FilterSubject == b.FilterSubject &&
		a.DeliverGroup == b.DeliverGroup &&
		a.MaxDeliver == b.MaxDeliver
}
