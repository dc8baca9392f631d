package interfaces

import (
	"context"

	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider"
)

type ControlPanel interface {
	EnsureSubdomain(ctx context.Context, root, sub, baseDir string) (provider.Result, error)
}

type DNSRecords interface {
	EnsureARecord(ctx context.Context, zoneID, fqdn, ip string) (provider.Result, error)
}

type Installer interface {
	SetupDirectory(ctx context.Context, params provider.InstallerParams) (provider.Result, error)
	SetupDatabase(ctx context.Context, params provider.InstallerParams) (provider.Result, error)
}

// Adapters builds provider clients for a project's settings.
type Adapters interface {
	ControlPanel(settings entity.ControlPanelSettings) ControlPanel
	DNS(settings entity.DNSSettings) DNSRecords
	Installer(settings entity.InstallerSettings) Installer
}
