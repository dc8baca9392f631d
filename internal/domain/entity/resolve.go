package entity

import "strings"

// Target is what a provisioning step acts on.
type Target struct {
	Domain        string
	Subdomain     string
	RootDomain    string
	ClientName    string
	AdminEmail    string
	AdminPassword string
}

// FQDN is the full host name served for the installation.
func (t Target) FQDN() string {
	if t.Subdomain == "" {
		return t.RootDomain
	}
	return t.Subdomain + "." + t.RootDomain
}

type ResolvedConfig struct {
	ControlPanel ControlPanelSettings
	DNS          DNSSettings
	Installer    InstallerSettings
	Target       Target
}

// Resolve builds the configuration a step runs with. Sources are applied in order:
// project providers, then each layer (draft data, then the step's own payload). A later
// source overrides an earlier one field by field; empty values never override.
func Resolve(providers ProviderSettings, clientName string, layers ...StepData) ResolvedConfig {
	cfg := ResolvedConfig{
		ControlPanel: providers.ControlPanel,
		DNS:          providers.DNS,
		Installer:    providers.Installer,
		Target:       Target{ClientName: clientName},
	}
	var subdomain, root string
	for _, layer := range layers {
		override(&cfg.Target.Domain, layer.String(KeyDomain))
		override(&subdomain, layer.String(KeySubdomain))
		override(&root, layer.String(KeyRootDomain))
		override(&cfg.Target.ClientName, layer.String(KeyClientName))
		override(&cfg.Target.AdminEmail, layer.String(KeyAdminEmail))
		override(&cfg.Target.AdminPassword, layer.String(KeyAdminPassword))
		override(&cfg.ControlPanel.BaseDir, layer.String(KeyBaseDir))
		override(&cfg.DNS.ServerIP, layer.String(KeyServerIP))
		override(&cfg.DNS.ZoneID, layer.String(KeyZoneID))
	}
	cfg.Target.Subdomain, cfg.Target.RootDomain = DecomposeDomain(cfg.Target.Domain, subdomain, root)
	return cfg
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// DecomposeDomain derives subdomain and root domain. With an explicit subdomain the
// root is the given root, else the domain minus its first label when it has more than
// two labels, else the domain itself. Without a subdomain a domain of more than two
// labels splits at its first dot, and a bare root domain gets "www".
func DecomposeDomain(domain, subdomain, rootDomain string) (string, string) {
	domain = NormalizeDomain(domain)
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	rootDomain = NormalizeDomain(rootDomain)

	labels := strings.Split(domain, ".")
	if domain == "" {
		labels = nil
	}

	if rootDomain == "" {
		if len(labels) > 2 {
			rootDomain = strings.Join(labels[1:], ".")
		} else {
			rootDomain = domain
		}
	}
	if subdomain == "" {
		if len(labels) > 2 {
			subdomain = labels[0]
		} else {
			subdomain = "www"
		}
	}
	return subdomain, rootDomain
}

// NormalizeDomain lower-cases and strips whitespace, a scheme and a trailing dot.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimSuffix(d, "/")
	return strings.TrimSuffix(d, ".")
}
