package blocklock

// ChannelFulfiller hands released requests to a consumer through a buffered
// channel. Once the buffer is full RegisterRequests blocks until the consumer
// catches up, so released requests are never dropped.
type ChannelFulfiller struct {
	ch chan []DecryptionRequest
}

// NewChannelFulfiller returns a fulfiller buffering up to capacity batches.
func NewChannelFulfiller(capacity int) *ChannelFulfiller {
	return &ChannelFulfiller{
		ch: make(chan []DecryptionRequest, capacity),
	}
}

// RegisterRequests implements Fulfiller.
func (f *ChannelFulfiller) RegisterRequests(reqs []DecryptionRequest) {
	f.ch <- append([]DecryptionRequest(nil), reqs...)
}

// Released returns the channel of released batches.
func (f *ChannelFulfiller) Released() <-chan []DecryptionRequest {
	return f.ch
}
