package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/docmail/docmail/pkg/document"
)

// IngestOutput mirrors the body of GET /receiveDocumentIncoming.
type IngestOutput struct {
	Length     int                       `json:"length" yaml:"length"`
	MarkedRead int                       `json:"markedRead" yaml:"markedRead"`
	Data       []document.IncomingRecord `json:"data" yaml:"data"`
}

func NewIngestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Read unread document notices once and mark them read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			app, err := NewApp(*rt.cfg, rt.log)
			if err != nil {
				return err
			}

			res, err := app.Pipeline.Ingest(cmd.Context())
			if err != nil {
				return err
			}
			out := IngestOutput{Length: len(res.Records), MarkedRead: res.MarkedRead, Data: res.Records}
			if out.Data == nil {
				out.Data = []document.IncomingRecord{}
			}

			format := Format(rt.OutputFormat(string(FormatJSON)))
			if format == FormatTable {
				return writeRecords(rt.Writer(), out.Data)
			}
			return WriteObject(rt.Writer(), format, out)
		},
	}
}

func writeRecords(w io.Writer, records []document.IncomingRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.MessageID,
			r.ReceivedDateTime.Format(time.RFC3339),
			r.SentFrom,
			r.DocNumber,
			r.Subject,
		})
	}
	return writeTable(w, []string{"MESSAGE ID", "RECEIVED", "FROM", "DOC NUMBER", "SUBJECT"}, rows)
}
