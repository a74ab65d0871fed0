// Package document defines the structured document notice exchanged by mail
// and the records produced when one is found in the inbox.
package document

import "time"

// Field names as they appear in the outbound template placeholders and in the
// JSON request/response bodies.
const (
	FieldDocNumber     = "docNumber"
	FieldDocTime       = "docTime"
	FieldDocSigner     = "docSigner"
	FieldDocPageNumber = "docPageNumber"
	FieldDocPriority   = "docPriority"
	FieldDocKeyword    = "docKeyword"
	FieldDocSecurity   = "docSecurity"
	FieldDocID         = "docId"
	FieldReturnEmail   = "returnEmail"
)

// FieldSpec binds a field name to the tag that carries it on the wire.
type FieldSpec struct {
	Name string
	Tag  string
}

// Envelope is the root tag every encoded document is wrapped in.
const Envelope = "DOC"

// Specs lists the nine required fields in template order. returnEmail is
// carried as RETURN-EMAIL; every other tag is the uppercased field name.
var Specs = []FieldSpec{
	{Name: FieldDocNumber, Tag: "DOCNUMBER"},
	{Name: FieldDocTime, Tag: "DOCTIME"},
	{Name: FieldDocSigner, Tag: "DOCSIGNER"},
	{Name: FieldDocPageNumber, Tag: "DOCPAGENUMBER"},
	{Name: FieldDocPriority, Tag: "DOCPRIORITY"},
	{Name: FieldDocKeyword, Tag: "DOCKEYWORD"},
	{Name: FieldDocSecurity, Tag: "DOCSECURITY"},
	{Name: FieldDocID, Tag: "DOCID"},
	{Name: FieldReturnEmail, Tag: "RETURN-EMAIL"},
}

// Fields maps field names to values. Missing keys read as empty strings.
type Fields map[string]string

// Document is a complete structured document notice. Values are only ever
// produced whole by the codec or by a caller; they are never mutated.
type Document struct {
	DocNumber     string `json:"docNumber" yaml:"docNumber"`
	DocTime       string `json:"docTime" yaml:"docTime"`
	DocSigner     string `json:"docSigner" yaml:"docSigner"`
	DocPageNumber string `json:"docPageNumber" yaml:"docPageNumber"`
	DocPriority   string `json:"docPriority" yaml:"docPriority"`
	DocKeyword    string `json:"docKeyword" yaml:"docKeyword"`
	DocSecurity   string `json:"docSecurity" yaml:"docSecurity"`
	DocID         string `json:"docId" yaml:"docId"`
	ReturnEmail   string `json:"returnEmail" yaml:"returnEmail"`
}

// FromFields builds a Document from a field map, reading absent keys as "".
func FromFields(f Fields) Document {
	return Document{
		DocNumber:     f[FieldDocNumber],
		DocTime:       f[FieldDocTime],
		DocSigner:     f[FieldDocSigner],
		DocPageNumber: f[FieldDocPageNumber],
		DocPriority:   f[FieldDocPriority],
		DocKeyword:    f[FieldDocKeyword],
		DocSecurity:   f[FieldDocSecurity],
		DocID:         f[FieldDocID],
		ReturnEmail:   f[FieldReturnEmail],
	}
}

// Fields returns the document as a field map holding all nine keys.
func (d Document) Fields() Fields {
	return Fields{
		FieldDocNumber:     d.DocNumber,
		FieldDocTime:       d.DocTime,
		FieldDocSigner:     d.DocSigner,
		FieldDocPageNumber: d.DocPageNumber,
		FieldDocPriority:   d.DocPriority,
		FieldDocKeyword:    d.DocKeyword,
		FieldDocSecurity:   d.DocSecurity,
		FieldDocID:         d.DocID,
		FieldReturnEmail:   d.ReturnEmail,
	}
}

// IncomingRecord is a decoded document together with the provenance of the
// mailbox message it was found in.
type IncomingRecord struct {
	Subject          string `json:"subject" yaml:"subject"`
	SentFrom         string `json:"sentFrom" yaml:"sentFrom"`
	Document         `yaml:",inline"`
	MessageID        string    `json:"messageId" yaml:"messageId"`
	ReceivedDateTime time.Time `json:"receivedDateTime" yaml:"receivedDateTime"`
}

// Attachment is a file sent along with an outgoing document notice.
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

// MaxAttachmentBytes caps the total size of all attachments in one send.
const MaxAttachmentBytes = 25 * 1024 * 1024

// DefaultContentType is used for attachments that arrive without one.
const DefaultContentType = "application/octet-stream"

// TotalSize returns the combined size of the attachments in bytes.
func TotalSize(atts []Attachment) int64 {
	var total int64
	for _, a := range atts {
		total += int64(len(a.Content))
	}
	return total
}

// Message is an unread mailbox message as returned by a mailbox backend.
type Message struct {
	ID               string
	Subject          string
	From             string
	ReceivedDateTime time.Time
	// Body is the message body as delivered, HTML or plain text.
	Body string
}

// OutgoingMessage is a rendered notice ready to be handed to a mail backend.
type OutgoingMessage struct {
	Subject     string
	HTMLBody    string
	To          []string
	Cc          []string
	Attachments []Attachment
}
