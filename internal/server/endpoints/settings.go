package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/larder/internal/api"
	"github.com/jackzampolin/larder/internal/config"
	"github.com/jackzampolin/larder/internal/svcctx"
)

type settingsTable []config.Entry

func (t settingsTable) Headers() []string { return []string{"KEY", "VALUE", "DESCRIPTION"} }

func (t settingsTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, e := range t {
		rows[i] = []string{e.Key, fmt.Sprint(e.Value), e.Description}
	}
	return rows
}

type settingsGroup struct{}

func (settingsGroup) Group() (string, string) { return "settings", "Show the server's effective configuration" }

// redact hides literal API keys. ${ENV_VAR} references are shown as written.
func redact(e config.Entry) config.Entry {
	if !strings.HasSuffix(e.Key, "api_key") {
		return e
	}
	if s, ok := e.Value.(string); ok && s != "" && !strings.HasPrefix(s, "${") {
		e.Value = "********"
	}
	return e
}

// ListSettingsEndpoint handles GET /settings.
type ListSettingsEndpoint struct{ settingsGroup }

func (e *ListSettingsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/settings", e.handler
}

func (e *ListSettingsEndpoint) RequiresInit() bool { return false }

func (e *ListSettingsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	cm := svcctx.ConfigManagerFrom(r.Context())
	if cm == nil {
		writeError(w, http.StatusServiceUnavailable, "config manager not available")
		return
	}
	entries := cm.Entries()
	for i := range entries {
		entries[i] = redact(entries[i])
	}
	writeJSON(w, http.StatusOK, entries)
}

func (e *ListSettingsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp []config.Entry
			if err := client.Get(cmd.Context(), "/settings", &resp); err != nil {
				return err
			}
			return api.Output(settingsTable(resp))
		},
	}
}

// GetSettingEndpoint handles GET /settings/{key}.
type GetSettingEndpoint struct{ settingsGroup }

func (e *GetSettingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/settings/{key}", e.handler
}

func (e *GetSettingEndpoint) RequiresInit() bool { return false }

func (e *GetSettingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	cm := svcctx.ConfigManagerFrom(r.Context())
	if cm == nil {
		writeError(w, http.StatusServiceUnavailable, "config manager not available")
		return
	}
	entry, err := cm.Lookup(r.PathValue("key"))
	switch {
	case errors.Is(err, config.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, config.ErrUnknownKey):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, redact(*entry))
	}
}

func (e *GetSettingEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get one setting, e.g. extraction.max_pdf_mb",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp config.Entry
			if err := client.Get(cmd.Context(), "/settings/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
