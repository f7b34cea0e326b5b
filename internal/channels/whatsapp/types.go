package whatsapp

// WebhookEvent is the top-level structure Meta posts for a WhatsApp Business account.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry holds the changes for one business account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one field update. Inbound messages arrive with Field "messages".
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the messages, sender profiles and delivery statuses.
type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         Metadata         `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts,omitempty"`
	Messages         []InboundMessage `json:"messages,omitempty"`
	Statuses         []Status         `json:"statuses,omitempty"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WebhookContact is the sender profile attached to inbound messages.
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// InboundMessage is a single user message.
type InboundMessage struct {
	From        string             `json:"from"`
	ID          string             `json:"id"`
	Timestamp   string             `json:"timestamp"`
	Type        string             `json:"type"`
	Text        *TextBody          `json:"text,omitempty"`
	Image       *MediaRef          `json:"image,omitempty"`
	Interactive *InteractiveReply  `json:"interactive,omitempty"`
	Button      *TemplateButtonTap `json:"button,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

type MediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// InteractiveReply is a tap on a reply button or list row.
type InteractiveReply struct {
	Type        string     `json:"type"`
	ButtonReply *ReplyItem `json:"button_reply,omitempty"`
	ListReply   *ReplyItem `json:"list_reply,omitempty"`
}

type ReplyItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// TemplateButtonTap is a quick-reply tap on a template message.
type TemplateButtonTap struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

// Status is a delivery receipt for an outbound message.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

// SendResponse is the Graph API response for /messages.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts,omitempty"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages,omitempty"`
	Success bool      `json:"success,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError is the Graph API error object.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

// MediaInfo is the Graph API response for a media id.
type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
}

type outboundMessage struct {
	MessagingProduct string               `json:"messaging_product"`
	RecipientType    string               `json:"recipient_type,omitempty"`
	To               string               `json:"to"`
	Type             string               `json:"type"`
	Text             *outboundText        `json:"text,omitempty"`
	Interactive      *outboundInteractive `json:"interactive,omitempty"`
	Template         *outboundTemplate    `json:"template,omitempty"`
	Location         *outboundLocation    `json:"location,omitempty"`
	Contacts         []outboundContact    `json:"contacts,omitempty"`
}

type outboundText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type outboundInteractive struct {
	Type   string            `json:"type"`
	Body   outboundTextBlock `json:"body"`
	Action outboundAction    `json:"action"`
}

type outboundTextBlock struct {
	Text string `json:"text"`
}

type outboundAction struct {
	Button   string            `json:"button,omitempty"`
	Buttons  []outboundButton  `json:"buttons,omitempty"`
	Sections []outboundSection `json:"sections,omitempty"`
}

type outboundButton struct {
	Type  string    `json:"type"`
	Reply ReplyItem `json:"reply"`
}

type outboundSection struct {
	Title string      `json:"title,omitempty"`
	Rows  []ReplyItem `json:"rows"`
}

type outboundTemplate struct {
	Name       string              `json:"name"`
	Language   outboundLanguage    `json:"language"`
	Components []templateComponent `json:"components,omitempty"`
}

type outboundLanguage struct {
	Code string `json:"code"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      string              `json:"index,omitempty"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Payload string `json:"payload,omitempty"`
}

type outboundLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type outboundContact struct {
	Addresses []contactAddress `json:"addresses,omitempty"`
	Emails    []contactEmail   `json:"emails,omitempty"`
	Name      contactName      `json:"name"`
	Org       *contactOrg      `json:"org,omitempty"`
	Phones    []contactPhone   `json:"phones,omitempty"`
	URLs      []contactURL     `json:"urls,omitempty"`
}

type contactAddress struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	Type   string `json:"type,omitempty"`
}

type contactEmail struct {
	Email string `json:"email"`
	Type  string `json:"type,omitempty"`
}

type contactName struct {
	FormattedName string `json:"formatted_name"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
}

type contactOrg struct {
	Company    string `json:"company,omitempty"`
	Department string `json:"department,omitempty"`
	Title      string `json:"title,omitempty"`
}

type contactPhone struct {
	Phone string `json:"phone"`
	WaID  string `json:"wa_id,omitempty"`
	Type  string `json:"type,omitempty"`
}

type contactURL struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

type readReceipt struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}
