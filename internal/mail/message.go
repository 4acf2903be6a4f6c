package mail

import "time"

// Defaults for missing headers.
const (
	DefaultSubject = "No Subject"
	DefaultSender  = "Unknown"
)

// Attachment describes a message part carrying a filename.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}

// Message is the summary view of one mail message. Date is nil when the
// header is missing or unparseable; DateRaw keeps the header as sent.
type Message struct {
	ID          string       `json:"message_id"`
	ThreadID    string       `json:"thread_id,omitempty"`
	Sender      string       `json:"sender"`
	Subject     string       `json:"subject"`
	Date        *time.Time   `json:"date"`
	DateRaw     string       `json:"date_raw,omitempty"`
	Snippet     string       `json:"snippet,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

// wire types for the Gmail REST API.

type listResponse struct {
	Messages []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	} `json:"messages"`
}

type header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type part struct {
	PartID   string   `json:"partId"`
	MimeType string   `json:"mimeType"`
	Filename string   `json:"filename"`
	Headers  []header `json:"headers"`
	Body     struct {
		AttachmentID string `json:"attachmentId"`
		Size         int    `json:"size"`
	} `json:"body"`
	Parts []part `json:"parts"`
}

type messageResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Snippet  string `json:"snippet"`
	Payload  part   `json:"payload"`
}

type attachmentResponse struct {
	Size int    `json:"size"`
	Data string `json:"data"`
}
