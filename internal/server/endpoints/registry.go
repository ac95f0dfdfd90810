package endpoints

import (
	"github.com/jackzampolin/larder/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Pipeline operations
		&ExtractEndpoint{},
		&NormalizeEndpoint{},
		&ConvertEndpoint{},
		&ProcessEndpoint{},

		// Async extraction tasks
		&ListTasksEndpoint{},
		&GetTaskEndpoint{},
		&CancelTaskEndpoint{},

		// Saved recipes
		&ListRecipesEndpoint{},
		&GetRecipeEndpoint{},
		&DeleteRecipeEndpoint{},

		// Settings
		&ListSettingsEndpoint{},
		&GetSettingEndpoint{},
	}
}
