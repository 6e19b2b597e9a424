package messaging

import (
	"slices"

	"github.com/segmentio/kafka-go"
)

// headers exposes a message's kafka headers as an otel TextMapCarrier.
type headers struct {
	msg *kafka.Message
}

func headersOf(msg *kafka.Message) headers {
	return headers{msg: msg}
}

func (h headers) index(key string) int {
	return slices.IndexFunc(h.msg.Headers, func(hdr kafka.Header) bool { return hdr.Key == key })
}

func (h headers) Get(key string) string {
	if i := h.index(key); i >= 0 {
		return string(h.msg.Headers[i].Value)
	}
	return ""
}

// Set overwrites a header that is already present.
func (h headers) Set(key, value string) {
	if i := h.index(key); i >= 0 {
		h.msg.Headers[i].Value = []byte(value)
		return
	}
	h.msg.Headers = append(h.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (h headers) Keys() []string {
	keys := make([]string, 0, len(h.msg.Headers))
	for _, hdr := range h.msg.Headers {
		keys = append(keys, hdr.Key)
	}
	return keys
}
