package groupcoordination

import (
	"log/slog"

	httpadapter "gatherly/contexts/collaboration/group-coordination/adapters/http"
	"gatherly/contexts/collaboration/group-coordination/adapters/memory"
	"gatherly/contexts/collaboration/group-coordination/application/commands"
	"gatherly/contexts/collaboration/group-coordination/application/queries"
	"gatherly/contexts/collaboration/group-coordination/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Repository    ports.Repository
	UnitOfWork    ports.UnitOfWork
	Clock         ports.Clock
	IDGenerator   ports.IDGenerator
	GroupPageSize int
	Logger        *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Handler: httpadapter.Handler{
			Users: commands.UserUseCase{
				UnitOfWork: deps.UnitOfWork,
				Clock:      deps.Clock,
				IDGen:      deps.IDGenerator,
				Logger:     deps.Logger,
			},
			Groups: commands.GroupUseCase{
				UnitOfWork: deps.UnitOfWork,
				Clock:      deps.Clock,
				IDGen:      deps.IDGenerator,
				Logger:     deps.Logger,
			},
			Polls: commands.PollUseCase{
				UnitOfWork: deps.UnitOfWork,
				Clock:      deps.Clock,
				IDGen:      deps.IDGenerator,
				Logger:     deps.Logger,
			},
			GroupReads: queries.GroupQueries{
				Repository: deps.Repository,
				PageSize:   deps.GroupPageSize,
				Logger:     deps.Logger,
			},
			PollReads: queries.PollQueries{
				Repository: deps.Repository,
			},
			Clock:  deps.Clock,
			Logger: deps.Logger,
		},
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository:    store,
		UnitOfWork:    store,
		Clock:         store,
		IDGenerator:   store,
		GroupPageSize: 50,
		Logger:        logger,
	})
	module.Store = store
	return module
}
