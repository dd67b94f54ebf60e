package model

// SendResult is what one outbound message produced on the platform.
type SendResult struct {
	Channel   string `json:"channel"`          // always "feishu" for the Feishu client
	MessageID string `json:"messageId"`        // platform message id
	ChatID    string `json:"chatId,omitempty"` // conversation the message landed in
}

// Delivery summarises one SendText / SendMedia call.
type Delivery struct {
	Channel    string       `json:"channel"`
	To         string       `json:"to"`
	ChunkCount int          `json:"chunkCount"`         // text chunks sent
	Fallback   bool         `json:"fallback,omitempty"` // media replaced by link text
	Results    []SendResult `json:"results"`            // in send order
}

// Last returns the result of the final message sent, or the zero value.
func (d *Delivery) Last() SendResult {
	if d == nil || len(d.Results) == 0 {
		return SendResult{}
	}
	return d.Results[len(d.Results)-1]
}

// Chunk is one piece of split text as reported by the split endpoints.
type Chunk struct {
	Idx  int    `json:"idx"`
	Len  int    `json:"len"` // rune count
	Text string `json:"text"`
}

// SplitResult is JSON-serialisable as-is.
type SplitResult struct {
	Mode       string  `json:"mode"`
	Limit      int     `json:"limit"`
	ChunkCount int     `json:"chunkCount"`
	Chunks     []Chunk `json:"chunks"`
}
