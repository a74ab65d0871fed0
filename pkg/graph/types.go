package graph

import "time"

// Wire types for the subset of the Microsoft Graph mail resources used here.

type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type message struct {
	ID               string     `json:"id"`
	Subject          string     `json:"subject"`
	From             *recipient `json:"from,omitempty"`
	ReceivedDateTime time.Time  `json:"receivedDateTime"`
	Body             itemBody   `json:"body"`
}

type messageList struct {
	Value    []message `json:"value"`
	NextLink string    `json:"@odata.nextLink,omitempty"`
}

const fileAttachmentType = "#microsoft.graph.fileAttachment"

type fileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

type outgoingMessage struct {
	Subject      string           `json:"subject"`
	Body         itemBody         `json:"body"`
	ToRecipients []recipient      `json:"toRecipients"`
	CcRecipients []recipient      `json:"ccRecipients,omitempty"`
	Attachments  []fileAttachment `json:"attachments,omitempty"`
}

type sendMailRequest struct {
	Message outgoingMessage `json:"message"`
}

type markReadRequest struct {
	IsRead bool `json:"isRead"`
}

// AttachmentInfo describes one attachment of a stored message.
type AttachmentInfo struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	ContentType          string    `json:"contentType"`
	Size                 int64     `json:"size"`
	IsInline             bool      `json:"isInline"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
}

type attachmentList struct {
	Value []AttachmentInfo `json:"value"`
}

func recipients(addrs []string) []recipient {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, recipient{EmailAddress: emailAddress{Address: a}})
	}
	return out
}
