package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/larder/internal/api"
	"github.com/jackzampolin/larder/internal/recipe"
	"github.com/jackzampolin/larder/internal/store"
	"github.com/jackzampolin/larder/internal/svcctx"
)

// RecipeSummary is one row of GET /recipes.
type RecipeSummary struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Type  recipe.Type `json:"recipe_type"`
}

type recipeList []RecipeSummary

func (l recipeList) Headers() []string { return []string{"ID", "TITLE", "TYPE"} }

func (l recipeList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, s := range l {
		rows[i] = []string{s.ID, s.Title, string(s.Type)}
	}
	return rows
}

type recipesGroup struct{}

func (recipesGroup) Group() (string, string) { return "recipes", "Manage saved recipes" }

// ListRecipesEndpoint handles GET /recipes.
type ListRecipesEndpoint struct{ recipesGroup }

func (e *ListRecipesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/recipes", e.handler
}

func (e *ListRecipesEndpoint) RequiresInit() bool { return true }

func (e *ListRecipesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	p := svcctx.PipelineFrom(r.Context())
	ids, err := p.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	list := make([]RecipeSummary, 0, len(ids))
	for _, id := range ids {
		res, err := p.Load(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue // deleted since List
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s := RecipeSummary{ID: id, Type: res.RecipeType}
		if res.Converted != nil {
			s.Title = res.Converted.Title
		}
		list = append(list, s)
	}
	writeJSON(w, http.StatusOK, list)
}

func (e *ListRecipesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp []RecipeSummary
			if err := client.Get(cmd.Context(), "/recipes", &resp); err != nil {
				return err
			}
			return api.Output(recipeList(resp))
		},
	}
}

// GetRecipeEndpoint handles GET /recipes/{id}.
type GetRecipeEndpoint struct{ recipesGroup }

func (e *GetRecipeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/recipes/{id}", e.handler
}

func (e *GetRecipeEndpoint) RequiresInit() bool { return true }

func (e *GetRecipeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "recipe id is required")
		return
	}

	res, err := svcctx.PipelineFrom(r.Context()).Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "recipe not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *GetRecipeEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a saved recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp recipe.ConversionResult
			if err := client.Get(cmd.Context(), "/recipes/"+args[0], &resp); err != nil {
				return err
			}
			return OutputResult(resp)
		},
	}
}

// DeleteRecipeEndpoint handles DELETE /recipes/{id}.
type DeleteRecipeEndpoint struct{ recipesGroup }

func (e *DeleteRecipeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/recipes/{id}", e.handler
}

func (e *DeleteRecipeEndpoint) RequiresInit() bool { return true }

func (e *DeleteRecipeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "recipe id is required")
		return
	}

	p := svcctx.PipelineFrom(r.Context())
	if _, err := p.Load(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "recipe not found")
		return
	}
	if err := p.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteRecipeEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/recipes/"+args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}
