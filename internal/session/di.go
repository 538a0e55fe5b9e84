package session

import (
	"github.com/foxseedlab/huddle/internal/conference"
	"github.com/foxseedlab/huddle/internal/config"
	"github.com/foxseedlab/huddle/internal/repository"
	"github.com/foxseedlab/huddle/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Archiver, error) {
		repo := do.MustInvoke[repository.ArchiveRepository](i)
		wh := do.MustInvoke[webhook.Sender](i)
		return NewArchiver(repo, wh), nil
	})
	do.Provide(injector, func(i do.Injector) (*Coordinator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		client := do.MustInvoke[conference.Client](i)
		archiver := do.MustInvoke[*Archiver](i)
		return NewCoordinator(cfg, client, archiver, NewRealScheduler()), nil
	})
}
