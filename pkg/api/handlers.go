package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/docmail/docmail/pkg/apiresponses"
	"github.com/docmail/docmail/pkg/document"
	"github.com/docmail/docmail/pkg/graph"
	"github.com/docmail/docmail/pkg/mail"
	"github.com/docmail/docmail/pkg/system"
	"github.com/docmail/docmail/pkg/version"
)

// multipartOverhead is allowed on top of the attachment limit for the data
// field and the multipart framing.
const multipartOverhead = 2 << 20

// HealthResponse is returned by GET /.
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

// IncomingResponse is returned by GET /receiveDocumentIncoming.
type IncomingResponse struct {
	Length     int                       `json:"length"`
	MarkedRead int                       `json:"markedRead"`
	Data       []document.IncomingRecord `json:"data"`
}

// AttachmentsResponse is returned by GET /documents/:messageId/attachments.
type AttachmentsResponse struct {
	MessageID   string                 `json:"messageId"`
	Length      int                    `json:"length"`
	Attachments []graph.AttachmentInfo `json:"attachments"`
}

// sendPayload is the JSON carried in the multipart "data" field. Information
// values may be any JSON scalar.
type sendPayload struct {
	MailTo      string         `json:"mailTo"`
	Subject     string         `json:"subject"`
	Information map[string]any `json:"information"`
	Cc          string         `json:"cc"`
}

func (s *Server) health(c *gin.Context) {
	apiresponses.RespondOK(c, HealthResponse{
		Status:  "running",
		Message: "docmail API is running",
		Version: version.Version,
	})
}

func (s *Server) sendDocumentOutgoing(c *gin.Context) {
	log := system.GetReqLogger(c, s.log)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, document.MaxAttachmentBytes+multipartOverhead)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apiresponses.RespondValidationFailed(c, "files", "total attachment size exceeds the 25MB limit")
			return
		}
		apiresponses.RespondBadRequestWithDetails(c, "expected a multipart form", err.Error())
		return
	}

	data := form.Value["data"]
	if len(data) == 0 || data[0] == "" {
		apiresponses.RespondValidationFailed(c, "data", "data field is required")
		return
	}
	var payload sendPayload
	if err := json.Unmarshal([]byte(data[0]), &payload); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "data must be a JSON object", err.Error())
		return
	}
	info, err := toFields(payload.Information)
	if err != nil {
		apiresponses.RespondValidationFailed(c, "information", err.Error())
		return
	}

	attachments, err := readAttachments(form.File["files"])
	if err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "could not read attachments", err.Error())
		return
	}

	res, err := s.deps.Mail.Send(c.Request.Context(), mail.SendRequest{
		MailTo:      payload.MailTo,
		Subject:     payload.Subject,
		Information: info,
		Cc:          payload.Cc,
	}, attachments)
	if err != nil {
		var ve *mail.ValidationError
		if errors.As(err, &ve) {
			log.Infow("Rejected outgoing document", "field", ve.Field, "reason", ve.Message)
			apiresponses.RespondValidationFailed(c, ve.Field, ve.Message)
			return
		}
		apiresponses.RespondInternalError(c, "send email", err, log)
		return
	}
	log.Infow("Outgoing document sent", "to", res.Data.To, "attachments", len(attachments))
	apiresponses.RespondOK(c, res)
}

// toFields flattens the information object into string fields. Nested
// objects and arrays are rejected; a missing object stays nil so the send
// path can report it.
func toFields(in map[string]any) (document.Fields, error) {
	if in == nil {
		return nil, nil
	}
	out := make(document.Fields, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		case bool, float64, json.Number:
			out[k] = fmt.Sprint(val)
		default:
			return nil, fmt.Errorf("information.%s must be a string, number or boolean", k)
		}
	}
	return out, nil
}

func readAttachments(files []*multipart.FileHeader) ([]document.Attachment, error) {
	out := make([]document.Attachment, 0, len(files))
	for _, fh := range files {
		content, err := readFile(fh)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		out = append(out, document.Attachment{
			Filename:    fh.Filename,
			Content:     content,
			ContentType: fh.Header.Get("Content-Type"),
		})
	}
	return out, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) receiveDocumentIncoming(c *gin.Context) {
	log := system.GetReqLogger(c, s.log)

	res, err := s.deps.Ingest.Ingest(c.Request.Context())
	if err != nil {
		apiresponses.RespondInternalError(c, "receive incoming documents", err, log)
		return
	}
	records := res.Records
	if records == nil {
		records = []document.IncomingRecord{}
	}
	apiresponses.RespondOK(c, IncomingResponse{
		Length:     len(records),
		MarkedRead: res.MarkedRead,
		Data:       records,
	})
}

func (s *Server) listAttachments(c *gin.Context) {
	log := system.GetReqLogger(c, s.log)
	id := c.Param("messageId")

	atts, err := s.deps.Attachments.ListAttachments(c.Request.Context(), id)
	if err != nil {
		var se *graph.StatusError
		switch {
		case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
			apiresponses.RespondNotFound(c, "message", id)
		case errors.As(err, &se):
			apiresponses.RespondBadGateway(c, "listAttachments", err, log)
		default:
			apiresponses.RespondInternalError(c, "list attachments", err, log)
		}
		return
	}
	apiresponses.RespondOK(c, AttachmentsResponse{
		MessageID:   id,
		Length:      len(atts),
		Attachments: atts,
	})
}
