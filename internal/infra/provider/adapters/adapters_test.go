package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/site-provisioner/internal/domain/entity"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/config"
	"github.com/Builder-Lawyers/site-provisioner/internal/infra/provider/cloudflare"
)

func timeouts() *config.AdapterTimeouts {
	return &config.AdapterTimeouts{ControlPanel: time.Second, DNS: time.Second, Installer: time.Second}
}

func Test_Factory_DNS_Defaults_To_Cloudflare(t *testing.T) {
	f := NewFactory(timeouts(), nil)

	records := f.DNS(entity.DNSSettings{APIToken: "tok"})

	_, ok := records.(*cloudflare.Client)
	require.True(t, ok)
}

func Test_Factory_DNS_When_Route53_Not_Configured_Then_Rejects(t *testing.T) {
	f := NewFactory(timeouts(), nil)

	res, err := f.DNS(entity.DNSSettings{Provider: consts.DNSRoute53}).
		EnsureARecord(context.Background(), "Z1", "www.example.com", "10.0.0.1")

	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "route53")
}
