// Package adapters builds provider clients from a project's resolved settings.
package adapters

import (
	"context"

	"github.com/Builder-Lawyers/site-provisioner/internal/application/interfaces"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/config"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider/cloudflare"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider/cpanel"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider/installer"
)

type Factory struct {
	timeouts       *config.AdapterTimeouts
	cloudflareOpts []cloudflare.Option
	route53        interfaces.DNSRecords
}

var _ interfaces.Adapters = (*Factory)(nil)

// NewFactory returns a factory. route53 may be nil when no AWS configuration is
// available; projects selecting it then fail with a rejection.
func NewFactory(timeouts *config.AdapterTimeouts, route53 interfaces.DNSRecords, cloudflareOpts ...cloudflare.Option) *Factory {
	return &Factory{timeouts: timeouts, route53: route53, cloudflareOpts: cloudflareOpts}
}

func (f *Factory) ControlPanel(settings entity.ControlPanelSettings) interfaces.ControlPanel {
	return cpanel.NewClient(settings, f.timeouts.ControlPanel)
}

func (f *Factory) DNS(settings entity.DNSSettings) interfaces.DNSRecords {
	if settings.Provider == consts.DNSRoute53 {
		if f.route53 == nil {
			return unavailable{message: "route53 is not configured on this server"}
		}
		return f.route53
	}
	return cloudflare.NewClient(settings.APIToken, f.timeouts.DNS, f.cloudflareOpts...)
}

func (f *Factory) Installer(settings entity.InstallerSettings) interfaces.Installer {
	return installer.NewClient(settings, f.timeouts.Installer)
}

type unavailable struct {
	message string
}

func (u unavailable) EnsureARecord(context.Context, string, string, string) (provider.Result, error) {
	return provider.Rejected(u.message), nil
}
