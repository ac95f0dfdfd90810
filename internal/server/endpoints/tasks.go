package endpoints

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/larder/internal/api"
	"github.com/jackzampolin/larder/internal/extract"
	"github.com/jackzampolin/larder/internal/svcctx"
)

type taskTable []extract.Snapshot

func (t taskTable) Headers() []string {
	return []string{"ID", "KIND", "STATE", "PERCENT", "WARNING", "ELAPSED"}
}

func (t taskTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, s := range t {
		rows[i] = []string{s.ID, string(s.Kind), string(s.State), fmt.Sprintf("%d%%", s.Percent), s.Warning, s.Elapsed.Round(time.Second).String()}
	}
	return rows
}

type tasksGroup struct{}

func (tasksGroup) Group() (string, string) { return "tasks", "Inspect and cancel async extractions" }

// ListTasksEndpoint handles GET /tasks.
type ListTasksEndpoint struct{ tasksGroup }

func (e *ListTasksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/tasks", e.handler
}

func (e *ListTasksEndpoint) RequiresInit() bool { return true }

func (e *ListTasksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	p := svcctx.PipelineFrom(r.Context())
	writeJSON(w, http.StatusOK, p.Orchestrator().Tasks().Active())
}

func (e *ListTasksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List running extractions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp []extract.Snapshot
			if err := client.Get(cmd.Context(), "/tasks", &resp); err != nil {
				return err
			}
			return api.Output(taskTable(resp))
		},
	}
}

// GetTaskEndpoint handles GET /tasks/{id}.
type GetTaskEndpoint struct{ tasksGroup }

func (e *GetTaskEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/tasks/{id}", e.handler
}

func (e *GetTaskEndpoint) RequiresInit() bool { return true }

func (e *GetTaskEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	task, ok := findTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, task.Snapshot())
}

func (e *GetTaskEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get progress or the result of an extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp extract.Snapshot
			if err := client.Get(cmd.Context(), "/tasks/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// CancelTaskEndpoint handles DELETE /tasks/{id}.
type CancelTaskEndpoint struct{ tasksGroup }

func (e *CancelTaskEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/tasks/{id}", e.handler
}

func (e *CancelTaskEndpoint) RequiresInit() bool { return true }

func (e *CancelTaskEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	task, ok := findTask(w, r)
	if !ok {
		return
	}
	task.Cancel()
	svcctx.LoggerFrom(r.Context()).Info("extraction cancelled", "task_id", task.ID())
	writeJSON(w, http.StatusOK, task.Snapshot())
}

func (e *CancelTaskEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/tasks/"+args[0]); err != nil {
				return err
			}
			if !api.IsStructuredOutput() {
				fmt.Printf("Cancelled %s\n", args[0])
			}
			return nil
		},
	}
}

func findTask(w http.ResponseWriter, r *http.Request) (*extract.Task, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "task id is required")
		return nil, false
	}
	p := svcctx.PipelineFrom(r.Context())
	task, ok := p.Orchestrator().Tasks().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return nil, false
	}
	return task, true
}
