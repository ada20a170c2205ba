package checkout

// MessageKind tells the transport adapter how to render a message.
type MessageKind string

const (
	KindText            MessageKind = "text"
	KindChoices         MessageKind = "choices"
	KindLocationRequest MessageKind = "location_request"
	KindPaymentLink     MessageKind = "payment_link"
)

// Choice is one selectable option offered to the customer.
type Choice struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Message is the semantic content of an outbound notification. The core
// never formats transport payloads; adapters decide how a choice list or
// payment link looks on the wire.
type Message struct {
	Kind       MessageKind `json:"kind"`
	Title      string      `json:"title,omitempty"`
	Body       string      `json:"body"`
	Choices    []Choice    `json:"choices,omitempty"`
	PaymentURL string      `json:"payment_url,omitempty"`
}

// Text builds a plain text message.
func Text(body string) Message {
	return Message{Kind: KindText, Body: body}
}

// Choices builds a message carrying selectable options.
func Choices(title, body string, choices []Choice) Message {
	return Message{Kind: KindChoices, Title: title, Body: body, Choices: choices}
}

// LocationRequest asks the customer to share a location.
func LocationRequest(body string) Message {
	return Message{Kind: KindLocationRequest, Body: body}
}

// PaymentLink carries an external payment URL alongside explanatory text.
func PaymentLink(body, url string) Message {
	return Message{Kind: KindPaymentLink, Body: body, PaymentURL: url}
}
