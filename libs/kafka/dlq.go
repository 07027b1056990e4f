package kafka

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// DLQError marks a handler failure that redelivery cannot cure, such as an
// undecodable order or trade event. The consumer routes these to the
// dead-letter topic once retries are exhausted.
type DLQError struct {
	Err    error
	Reason string
}

func (e *DLQError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *DLQError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DLQ wraps err for dead-letter routing with a short machine-readable reason.
func DLQ(err error, reason string) error {
	if err == nil {
		return nil
	}
	return &DLQError{Err: err, Reason: reason}
}

// DLQPayload is the dead-letter record for a message the journal consumer
// gave up on. The original bytes ride along base64-encoded so a replay tool
// can resubmit them unchanged.
type DLQPayload struct {
	OriginalTopic string    `json:"original_topic"`
	Partition     int32     `json:"partition"`
	Offset        int64     `json:"offset"`
	Key           string    `json:"key,omitempty"`
	Error         string    `json:"error"`
	Reason        string    `json:"reason,omitempty"`
	Attempts      int       `json:"attempts,omitempty"`
	Payload       string    `json:"payload_base64"`
	Timestamp     time.Time `json:"timestamp"`
}

func BuildDLQPayload(msg *sarama.ConsumerMessage, err *DLQError, attempts int) DLQPayload {
	p := DLQPayload{
		OriginalTopic: msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Attempts:      attempts,
		Timestamp:     time.Now().UTC(),
	}
	if len(msg.Key) > 0 {
		p.Key = string(msg.Key)
	}
	if len(msg.Value) > 0 {
		p.Payload = base64.StdEncoding.EncodeToString(msg.Value)
	}
	if err != nil {
		p.Reason = err.Reason
		if err.Err != nil {
			p.Error = err.Err.Error()
		} else {
			p.Error = err.Error()
		}
	}
	return p
}

// DLQPublishPayload is the producer-side counterpart: the record written when
// publishing an exchange event itself failed and the event would otherwise be
// lost.
type DLQPublishPayload struct {
	OriginalTopic string    `json:"original_topic"`
	Key           string    `json:"key,omitempty"`
	Error         string    `json:"error"`
	Reason        string    `json:"reason,omitempty"`
	Attempts      int       `json:"attempts,omitempty"`
	Payload       string    `json:"payload_base64"`
	Timestamp     time.Time `json:"timestamp"`
}

func BuildPublishDLQPayload(topic, key string, value any, err error, reason string, attempts int) DLQPublishPayload {
	p := DLQPublishPayload{
		OriginalTopic: topic,
		Key:           key,
		Reason:        reason,
		Attempts:      attempts,
		Timestamp:     time.Now().UTC(),
	}
	if value != nil {
		raw, marshalErr := json.Marshal(value)
		if marshalErr != nil {
			raw = []byte(fmt.Sprintf("%v", value))
		}
		p.Payload = base64.StdEncoding.EncodeToString(raw)
	}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}
