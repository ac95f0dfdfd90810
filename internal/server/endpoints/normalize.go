package endpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/larder/internal/api"
	"github.com/jackzampolin/larder/internal/recipe"
	"github.com/jackzampolin/larder/internal/svcctx"
)

// NormalizeRequest is the body of POST /normalize.
type NormalizeRequest struct {
	Text string `json:"text"`
}

// NormalizeResponse carries the structured draft.
type NormalizeResponse struct {
	Draft recipe.Draft `json:"draft"`
}

// NormalizeEndpoint handles POST /normalize.
type NormalizeEndpoint struct{}

func (e *NormalizeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/normalize", e.handler
}

func (e *NormalizeEndpoint) RequiresInit() bool { return true }

func (e *NormalizeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	p := svcctx.PipelineFrom(r.Context())

	var req NormalizeRequest
	body := http.MaxBytesReader(w, r.Body, p.Orchestrator().Config().MaxTextBytes+maxFieldBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	writeJSON(w, http.StatusOK, NormalizeResponse{Draft: p.NormalizeAndStructure(req.Text)})
}

func (e *NormalizeEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <file|->",
		Short: "Clean recipe text and split it into title, ingredients and instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, err := openArg(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			text, err := io.ReadAll(f)
			if err != nil {
				return err
			}

			client := api.NewClient(getServerURL())
			var resp NormalizeResponse
			if err := client.Post(cmd.Context(), "/normalize", NormalizeRequest{Text: string(text)}, &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatTable {
				return api.Output(draftTable(resp.Draft))
			}
			return api.Output(resp)
		},
	}
}

// ConvertRequest is the body of POST /convert.
type ConvertRequest struct {
	Draft recipe.Draft `json:"draft"`
	Units string       `json:"units,omitempty"`
}

// ConvertEndpoint handles POST /convert.
type ConvertEndpoint struct{}

func (e *ConvertEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/convert", e.handler
}

func (e *ConvertEndpoint) RequiresInit() bool { return true }

func (e *ConvertEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	p := svcctx.PipelineFrom(r.Context())

	var req ConvertRequest
	body := http.MaxBytesReader(w, r.Body, p.Orchestrator().Config().MaxTextBytes+maxFieldBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	system, ok := unitsFor(w, p.DefaultUnits(), req.Units)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, p.ClassifyAndConvert(r.Context(), req.Draft, system))
}

func (e *ConvertEndpoint) Command(getServerURL func() string) *cobra.Command {
	var units string
	cmd := &cobra.Command{
		Use:   "convert <draft.json|->",
		Short: "Classify a draft and convert its units",
		Long: `Classify a recipe draft (as returned by "larder api normalize") and
convert it to the requested unit system, computing baker's percentages
for bread recipes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, _, err := openArg(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			// Accept either a bare draft or a normalize response.
			var wrapped NormalizeResponse
			var draft recipe.Draft
			data, err := io.ReadAll(f)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Draft.Title != "" {
				draft = wrapped.Draft
			} else if err := json.Unmarshal(data, &draft); err != nil {
				return fmt.Errorf("failed to parse draft: %w", err)
			}

			client := api.NewClient(getServerURL())
			var resp recipe.ConversionResult
			if err := client.Post(cmd.Context(), "/convert", ConvertRequest{Draft: draft, Units: units}, &resp); err != nil {
				return err
			}
			return OutputResult(resp)
		},
	}
	cmd.Flags().StringVar(&units, "units", "", "Target units: original, metric or imperial (default: server setting)")
	return cmd
}

// unitsFor parses a requested unit system, falling back to def when empty.
func unitsFor(w http.ResponseWriter, def recipe.UnitSystem, requested string) (recipe.UnitSystem, bool) {
	if strings.TrimSpace(requested) == "" {
		return def, true
	}
	system, err := recipe.ParseUnitSystem(requested)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return system, true
}
