package domain

import (
	"strings"
	"time"

	"mailsync_server/pkg/apperr"
)

// OutboundEmail is a send request. It exists only for the duration of the send.
type OutboundEmail struct {
	Recipients  []string `json:"recipients"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments,omitempty"`
}

// Validate normalizes recipients in place and rejects an empty or invalid list.
func (e *OutboundEmail) Validate() error {
	if len(e.Recipients) == 0 {
		return apperr.MissingField("recipients")
	}

	normalized := make([]string, 0, len(e.Recipients))
	for _, r := range e.Recipients {
		addr, err := NormalizeAddress(r, false)
		if err != nil {
			return apperr.InvalidField("recipients", err.Error())
		}
		normalized = append(normalized, addr)
	}
	e.Recipients = normalized

	for _, name := range e.Attachments {
		if strings.TrimSpace(name) == "" {
			return apperr.InvalidField("attachments", "attachment name must not be empty")
		}
	}
	return nil
}

// SentRecord is the best-effort trace of an accepted send.
type SentRecord struct {
	ID           string    `json:"id" bson:"_id"`
	Subject      string    `json:"subject" bson:"subject"`
	Body         string    `json:"body" bson:"body"`
	ToRecipients []string  `json:"toRecipients" bson:"toRecipients"`
	Attachments  []string  `json:"attachments,omitempty" bson:"attachments,omitempty"`
	SentAt       time.Time `json:"sentDateTime" bson:"sentDateTime"`
	Status       string    `json:"status" bson:"status"`
}

const SentStatus = "Sent"

// Contact is the address book entry of one owner.
type Contact struct {
	Owner      string    `json:"owner" bson:"_id"`
	Contacts   []string  `json:"contacts" bson:"contacts"`
	CreatedAt  time.Time `json:"created_at" bson:"createdAt"`
	LastSeenAt time.Time `json:"last_seen_at" bson:"lastSeenAt"`
}

// ContactSet normalizes addresses into a fresh set, dropping empties, invalid
// addresses and the owner itself. Order of first appearance is kept.
func ContactSet(owner string, addresses []string) []string {
	self, _ := NormalizeAddress(owner, true)
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		addr, err := NormalizeAddress(a, true)
		if err != nil || addr == "" || addr == self {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
