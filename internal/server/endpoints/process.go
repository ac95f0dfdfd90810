package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/larder/internal/api"
	"github.com/jackzampolin/larder/internal/pipeline"
	"github.com/jackzampolin/larder/internal/svcctx"
)

// ProcessEndpoint handles POST /process: extract, structure, classify,
// convert, recover once when needed, and save the result.
type ProcessEndpoint struct{}

var _ api.Endpoint = (*ProcessEndpoint)(nil)

func (e *ProcessEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/process", e.handler
}

func (e *ProcessEndpoint) RequiresInit() bool { return true }

func (e *ProcessEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	p := svcctx.PipelineFrom(r.Context())
	logger := svcctx.LoggerFrom(r.Context())

	up, err := readUpload(r, uploadLimit(p.Orchestrator().Config()))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	system, ok := unitsFor(w, p.DefaultUnits(), up.Fields["units"])
	if !ok {
		return
	}

	out := p.Process(r.Context(), up.Input, nil, system)
	if !out.Succeeded() {
		writeRecipeError(w, out.Failure())
		return
	}

	id, err := p.Save(r.Context(), *out.Result)
	if err != nil {
		logger.Error("failed to save recipe", "request_id", out.ID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("recipe converted but not saved: %v", err))
		return
	}
	out.RecipeID = id
	writeJSON(w, http.StatusOK, out)
}

func (e *ProcessEndpoint) Command(getServerURL func() string) *cobra.Command {
	var units, kind string
	cmd := &cobra.Command{
		Use:   "process <file|->",
		Short: "Turn a photo, PDF or text file into a saved, converted recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, name, err := openArg(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			fields := map[string]string{}
			if units != "" {
				fields["units"] = units
			}
			if kind != "" {
				fields["kind"] = kind
			}
			client := api.NewClient(getServerURL())
			var out pipeline.Outcome
			if err := client.PostFile(cmd.Context(), "/process", name, f, fields, &out); err != nil {
				return err
			}
			return OutputOutcome(out)
		},
	}
	cmd.Flags().StringVar(&units, "units", "", "Target units: original, metric or imperial (default: server setting)")
	cmd.Flags().StringVar(&kind, "kind", "", "Declared input kind: image, pdf or text (default: detect)")
	return cmd
}
