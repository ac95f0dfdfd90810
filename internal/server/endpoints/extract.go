package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/larder/internal/api"
	"github.com/jackzampolin/larder/internal/extract"
	"github.com/jackzampolin/larder/internal/svcctx"
)

// ExtractResponse is returned by a blocking extraction.
type ExtractResponse struct {
	Text     string       `json:"text"`
	Kind     extract.Kind `json:"kind"`
	Duration string       `json:"duration"`
}

// ExtractStartedResponse is returned by ?async=true.
type ExtractStartedResponse struct {
	TaskID string       `json:"task_id"`
	Kind   extract.Kind `json:"kind"`
}

// ExtractEndpoint handles POST /extract.
type ExtractEndpoint struct{}

var _ api.Endpoint = (*ExtractEndpoint)(nil)

func (e *ExtractEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/extract", e.handler
}

func (e *ExtractEndpoint) RequiresInit() bool { return true }

func (e *ExtractEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	p := svcctx.PipelineFrom(r.Context())
	logger := svcctx.LoggerFrom(r.Context())

	up, err := readUpload(r, uploadLimit(p.Orchestrator().Config()))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	async, _ := strconv.ParseBool(up.Fields["async"])
	if async {
		// The task outlives the request; DELETE /tasks/{id} cancels it.
		ctx := context.WithoutCancel(r.Context())
		switch res := p.Start(ctx, up.Input, nil).(type) {
		case *extract.Task:
			logger.Info("extraction started", "task_id", res.ID(), "kind", res.Kind(), "bytes", up.Input.Size())
			writeJSON(w, http.StatusAccepted, ExtractStartedResponse{TaskID: res.ID(), Kind: res.Kind()})
		case *extract.Failure:
			writeRecipeError(w, res.Err.Info())
		default:
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("unexpected result %T", res))
		}
		return
	}

	switch res := p.Extract(r.Context(), up.Input, nil).(type) {
	case extract.Text:
		writeJSON(w, http.StatusOK, ExtractResponse{
			Text:     res.Content,
			Kind:     res.Kind,
			Duration: res.Duration.Round(time.Millisecond).String(),
		})
	case *extract.Failure:
		writeRecipeError(w, res.Err.Info())
	default:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("unexpected result %T", res))
	}
}

func (e *ExtractEndpoint) Command(getServerURL func() string) *cobra.Command {
	var kind string
	var async bool
	cmd := &cobra.Command{
		Use:   "extract <file|->",
		Short: "Extract raw text from an image, PDF or text file",
		Long: `Upload a file and return its raw text without structuring it.

With --async the server returns a task id immediately; poll it with
"larder api tasks get <id>" or cancel it with "larder api tasks cancel <id>".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, name, err := openArg(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			fields := map[string]string{}
			if kind != "" {
				fields["kind"] = kind
			}
			path := "/extract"
			if async {
				path += "?async=true"
			}
			client := api.NewClient(getServerURL())
			if async {
				var resp ExtractStartedResponse
				if err := client.PostFile(cmd.Context(), path, name, f, fields, &resp); err != nil {
					return err
				}
				return api.Output(resp)
			}
			var resp ExtractResponse
			if err := client.PostFile(cmd.Context(), path, name, f, fields, &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			fmt.Print(resp.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Declared input kind: image, pdf or text (default: detect)")
	cmd.Flags().BoolVar(&async, "async", false, "Start the extraction and return a task id")
	return cmd
}
