package handlers

import (
	"github.com/mikklepp/trickle/internal/repository"
	"github.com/mikklepp/trickle/services"
)

type APIHandlers struct {
	Jobs     *JobsHandler
	Events   *EventsHandler
	Provider *ProviderHandler
}

func InitHandlers(s *services.Services, repos *repository.Repositories) *APIHandlers {
	return &APIHandlers{
		Jobs:     NewJobsHandler(s, repos),
		Events:   NewEventsHandler(s, repos),
		Provider: NewProviderHandler(s),
	}
}
