package cli

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/docmail/docmail/pkg/document"
	"github.com/docmail/docmail/pkg/mail"
)

func NewSendCommand() *cobra.Command {
	var (
		dataPath string
		files    []string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one document notice",
		Example: `  docmail send --data notice.json --file notice.pdf
  cat notice.json | docmail send --data -`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}

			req, err := readSendRequest(dataPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			attachments, err := readAttachmentFiles(files)
			if err != nil {
				return err
			}

			app, err := NewApp(*rt.cfg, rt.log)
			if err != nil {
				return err
			}
			res, err := app.Mail.Send(cmd.Context(), req, attachments)
			if err != nil {
				return err
			}

			format := Format(rt.OutputFormat(string(FormatJSON)))
			if format == FormatTable {
				_, err = fmt.Fprintln(rt.Writer(), res.Message)
				return err
			}
			return WriteObject(rt.Writer(), format, res)
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "JSON file with mailTo, subject, information and cc (- for stdin)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "File to attach (repeatable)")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func readSendRequest(path string, stdin io.Reader) (mail.SendRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) // #nosec G304 -- path supplied by the operator
	}
	if err != nil {
		return mail.SendRequest{}, fmt.Errorf("reading request data: %w", err)
	}

	var req mail.SendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return mail.SendRequest{}, fmt.Errorf("request data is not valid JSON: %w", err)
	}
	return req, nil
}

func readAttachmentFiles(paths []string) ([]document.Attachment, error) {
	out := make([]document.Attachment, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p) // #nosec G304 -- path supplied by the operator
		if err != nil {
			return nil, fmt.Errorf("reading attachment: %w", err)
		}
		out = append(out, document.Attachment{
			Filename:    filepath.Base(p),
			Content:     content,
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
		})
	}
	return out, nil
}
