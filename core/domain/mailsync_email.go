package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"mailsync_server/pkg/apperr"

	"github.com/emersion/go-message/mail"
	"github.com/goccy/go-json"
)

// =============================================================================
// Message - normalized mailbox message, keyed by the provider's message ID
// =============================================================================

// RawMessage is one undecoded message object from the provider's list response.
type RawMessage []byte

type EmailAddress struct {
	Name    string `json:"name" bson:"name"`
	Address string `json:"address" bson:"address"`
}

type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress" bson:"emailAddress"`
}

type Body struct {
	ContentType string `json:"contentType" bson:"contentType"`
	Content     string `json:"content" bson:"content"`
}

type Message struct {
	ID                string `json:"id" bson:"_id"`
	ETag              string `json:"@odata.etag,omitempty" bson:"odataEtag,omitempty"`
	ChangeKey         string `json:"changeKey" bson:"changeKey"`
	InternetMessageID string `json:"internetMessageId,omitempty" bson:"internetMessageId,omitempty"`

	Subject     string `json:"subject" bson:"subject"`
	BodyPreview string `json:"bodyPreview,omitempty" bson:"bodyPreview,omitempty"`
	Body        *Body  `json:"body,omitempty" bson:"body,omitempty"`

	Sender        *Recipient  `json:"sender,omitempty" bson:"sender,omitempty"`
	From          *Recipient  `json:"from,omitempty" bson:"from,omitempty"`
	ToRecipients  []Recipient `json:"toRecipients" bson:"toRecipients"`
	CcRecipients  []Recipient `json:"ccRecipients" bson:"ccRecipients"`
	BccRecipients []Recipient `json:"bccRecipients" bson:"bccRecipients"`
	ReplyTo       []Recipient `json:"replyTo" bson:"replyTo"`

	ReceivedAt     time.Time `json:"receivedDateTime" bson:"receivedDateTime"`
	SentAt         time.Time `json:"sentDateTime" bson:"sentDateTime"`
	CreatedAt      time.Time `json:"createdDateTime" bson:"createdDateTime"`
	LastModifiedAt time.Time `json:"lastModifiedDateTime" bson:"lastModifiedDateTime"`

	// Read state
	IsRead                     *bool `json:"isRead,omitempty" bson:"isRead,omitempty"`
	IsDraft                    *bool `json:"isDraft,omitempty" bson:"isDraft,omitempty"`
	IsDeliveryReceiptRequested *bool `json:"isDeliveryReceiptRequested,omitempty" bson:"isDeliveryReceiptRequested,omitempty"`
	IsReadReceiptRequested     *bool `json:"isReadReceiptRequested,omitempty" bson:"isReadReceiptRequested,omitempty"`

	// Threading
	ParentFolderID    string `json:"parentFolderId,omitempty" bson:"parentFolderId,omitempty"`
	ConversationID    string `json:"conversationId,omitempty" bson:"conversationId,omitempty"`
	ConversationIndex string `json:"conversationIndex,omitempty" bson:"conversationIndex,omitempty"`

	// Provider metadata
	HasAttachments          bool           `json:"hasAttachments" bson:"hasAttachments"`
	Categories              []string       `json:"categories" bson:"categories"`
	Importance              string         `json:"importance,omitempty" bson:"importance,omitempty"`
	WebLink                 string         `json:"webLink,omitempty" bson:"webLink,omitempty"`
	InferenceClassification string         `json:"inferenceClassification,omitempty" bson:"inferenceClassification,omitempty"`
	Flag                    map[string]any `json:"flag,omitempty" bson:"flag,omitempty"`
}

// SenderAddress returns the from address, falling back to the sender.
func (m *Message) SenderAddress() string {
	if m.From != nil && m.From.EmailAddress.Address != "" {
		return m.From.EmailAddress.Address
	}
	if m.Sender != nil {
		return m.Sender.EmailAddress.Address
	}
	return ""
}

// messagePayload mirrors the provider JSON with pointers so presence can be checked.
type messagePayload struct {
	ETag              *string `json:"@odata.etag"`
	ID                *string `json:"id"`
	ChangeKey         *string `json:"changeKey"`
	InternetMessageID *string `json:"internetMessageId"`

	Subject     *string `json:"subject"`
	BodyPreview *string `json:"bodyPreview"`
	Body        *Body   `json:"body"`

	Sender        *Recipient  `json:"sender"`
	From          *Recipient  `json:"from"`
	ToRecipients  []Recipient `json:"toRecipients"`
	CcRecipients  []Recipient `json:"ccRecipients"`
	BccRecipients []Recipient `json:"bccRecipients"`
	ReplyTo       []Recipient `json:"replyTo"`

	ReceivedDateTime     *string `json:"receivedDateTime"`
	SentDateTime         *string `json:"sentDateTime"`
	CreatedDateTime      *string `json:"createdDateTime"`
	LastModifiedDateTime *string `json:"lastModifiedDateTime"`

	IsRead                     *bool `json:"isRead"`
	IsDraft                    *bool `json:"isDraft"`
	IsDeliveryReceiptRequested *bool `json:"isDeliveryReceiptRequested"`
	IsReadReceiptRequested     *bool `json:"isReadReceiptRequested"`

	ParentFolderID    *string `json:"parentFolderId"`
	ConversationID    *string `json:"conversationId"`
	ConversationIndex *string `json:"conversationIndex"`

	HasAttachments          *bool          `json:"hasAttachments"`
	Categories              []string       `json:"categories"`
	Importance              *string        `json:"importance"`
	WebLink                 *string        `json:"webLink"`
	InferenceClassification *string        `json:"inferenceClassification"`
	Flag                    map[string]any `json:"flag"`
}

// ParseMessage validates a raw provider payload and builds a Message.
// A payload that fails validation yields no Message and a VALIDATION_FAILED error.
func ParseMessage(raw RawMessage) (*Message, error) {
	var p messagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperr.ValidationFailed("malformed message payload").WithDetail("cause", err.Error())
	}

	if p.ID == nil || strings.TrimSpace(*p.ID) == "" {
		return nil, apperr.MissingField("id")
	}
	if p.ChangeKey == nil {
		return nil, apperr.MissingField("changeKey")
	}
	if p.HasAttachments == nil {
		return nil, apperr.MissingField("hasAttachments")
	}
	if p.Categories == nil {
		return nil, apperr.MissingField("categories")
	}

	msg := &Message{
		ID:                *p.ID,
		ETag:              deref(p.ETag),
		ChangeKey:         *p.ChangeKey,
		InternetMessageID: deref(p.InternetMessageID),

		Subject:     deref(p.Subject),
		BodyPreview: deref(p.BodyPreview),
		Body:        p.Body,

		IsRead:                     p.IsRead,
		IsDraft:                    p.IsDraft,
		IsDeliveryReceiptRequested: p.IsDeliveryReceiptRequested,
		IsReadReceiptRequested:     p.IsReadReceiptRequested,

		ParentFolderID:    deref(p.ParentFolderID),
		ConversationID:    deref(p.ConversationID),
		ConversationIndex: deref(p.ConversationIndex),

		HasAttachments:          *p.HasAttachments,
		Categories:              p.Categories,
		Importance:              deref(p.Importance),
		WebLink:                 deref(p.WebLink),
		InferenceClassification: deref(p.InferenceClassification),
		Flag:                    p.Flag,
	}

	var err error
	if msg.ReceivedAt, err = requireTime("receivedDateTime", p.ReceivedDateTime); err != nil {
		return nil, err
	}
	if msg.SentAt, err = requireTime("sentDateTime", p.SentDateTime); err != nil {
		return nil, err
	}
	if msg.CreatedAt, err = requireTime("createdDateTime", p.CreatedDateTime); err != nil {
		return nil, err
	}
	if msg.LastModifiedAt, err = requireTime("lastModifiedDateTime", p.LastModifiedDateTime); err != nil {
		return nil, err
	}

	if msg.Sender, err = normalizeRecipient("sender", p.Sender); err != nil {
		return nil, err
	}
	if msg.From, err = normalizeRecipient("from", p.From); err != nil {
		return nil, err
	}
	if msg.ToRecipients, err = normalizeRecipients("toRecipients", p.ToRecipients); err != nil {
		return nil, err
	}
	if msg.CcRecipients, err = normalizeRecipients("ccRecipients", p.CcRecipients); err != nil {
		return nil, err
	}
	if msg.BccRecipients, err = normalizeRecipients("bccRecipients", p.BccRecipients); err != nil {
		return nil, err
	}
	if msg.ReplyTo, err = normalizeRecipients("replyTo", p.ReplyTo); err != nil {
		return nil, err
	}

	return msg, nil
}

// ReceivedDateTime extracts only the receivedDateTime of a raw payload.
func ReceivedDateTime(raw RawMessage) (time.Time, error) {
	var p struct {
		ReceivedDateTime *string `json:"receivedDateTime"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return time.Time{}, apperr.ValidationFailed("malformed message payload").WithDetail("cause", err.Error())
	}
	return requireTime("receivedDateTime", p.ReceivedDateTime)
}

func requireTime(field string, value *string) (time.Time, error) {
	if value == nil || *value == "" {
		return time.Time{}, apperr.MissingField(field)
	}
	t, err := time.Parse(time.RFC3339Nano, *value)
	if err != nil {
		return time.Time{}, apperr.InvalidField(field, err.Error())
	}
	return t.UTC(), nil
}

func normalizeRecipient(field string, r *Recipient) (*Recipient, error) {
	if r == nil {
		return nil, nil
	}
	addr, err := NormalizeAddress(r.EmailAddress.Address, true)
	if err != nil {
		return nil, apperr.InvalidField(field, err.Error())
	}
	return &Recipient{EmailAddress: EmailAddress{Name: r.EmailAddress.Name, Address: addr}}, nil
}

func normalizeRecipients(field string, list []Recipient) ([]Recipient, error) {
	out := make([]Recipient, 0, len(list))
	for i := range list {
		r, err := normalizeRecipient(field, &list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// NormalizeAddress validates an address and returns its lowercase bare form.
// An empty address is accepted only when allowEmpty is set.
func NormalizeAddress(address string, allowEmpty bool) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		if allowEmpty {
			return "", nil
		}
		return "", errors.New("email address is required")
	}
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", fmt.Errorf("%q is not a valid email address", trimmed)
	}
	return strings.ToLower(parsed.Address), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
