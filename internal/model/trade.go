package model

import "time"

// Delivery is one raw entry read from the inbound trade stream.
// Payload is nil when the entry carried no "data" field.
type Delivery struct {
	Stream     string
	ID         string // stream entry ID, used for acknowledgment
	Payload    []byte
	ReceivedAt time.Time
}

// PriceSample is the (token, price) pair extracted from a trade payload.
type PriceSample struct {
	Token string
	Price float64
}
