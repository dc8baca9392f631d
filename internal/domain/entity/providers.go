package entity

import "github.com/Builder-Lawyers/site-provisioner/internal/domain/consts"

// ProviderSettings is the project-level provider configuration stored as JSON on the
// project row and optionally defaulted from the provider defaults file.
type ProviderSettings struct {
	ControlPanel ControlPanelSettings `json:"controlPanel" yaml:"controlPanel"`
	DNS          DNSSettings          `json:"dns" yaml:"dns"`
	Installer    InstallerSettings    `json:"installer" yaml:"installer"`
}

type ControlPanelSettings struct {
	Host        string `json:"host" yaml:"host"`
	Username    string `json:"username" yaml:"username"`
	Token       string `json:"token" yaml:"token"`
	BaseDir     string `json:"baseDir" yaml:"baseDir"`
	InsecureTLS bool   `json:"insecureTLS" yaml:"insecureTLS"`
}

type DNSSettings struct {
	Provider consts.DNSProvider `json:"provider" yaml:"provider"`
	ZoneID   string             `json:"zoneId" yaml:"zoneId"`
	APIToken string             `json:"apiToken" yaml:"apiToken"`
	ServerIP string             `json:"serverIp" yaml:"serverIp"`
}

type InstallerSettings struct {
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	Token       string `json:"token" yaml:"token"`
	InsecureTLS bool   `json:"insecureTLS" yaml:"insecureTLS"`
}

// WithDefaults fills empty fields of s from defaults.
func (s ProviderSettings) WithDefaults(defaults ProviderSettings) ProviderSettings {
	cp, d := &s.ControlPanel, defaults.ControlPanel
	cp.Host = firstNonEmpty(cp.Host, d.Host)
	cp.Username = firstNonEmpty(cp.Username, d.Username)
	cp.Token = firstNonEmpty(cp.Token, d.Token)
	cp.BaseDir = firstNonEmpty(cp.BaseDir, d.BaseDir)
	cp.InsecureTLS = cp.InsecureTLS || d.InsecureTLS

	dns, dd := &s.DNS, defaults.DNS
	if dns.Provider == "" {
		dns.Provider = dd.Provider
	}
	dns.ZoneID = firstNonEmpty(dns.ZoneID, dd.ZoneID)
	dns.APIToken = firstNonEmpty(dns.APIToken, dd.APIToken)
	dns.ServerIP = firstNonEmpty(dns.ServerIP, dd.ServerIP)

	in, id := &s.Installer, defaults.Installer
	in.Endpoint = firstNonEmpty(in.Endpoint, id.Endpoint)
	in.Token = firstNonEmpty(in.Token, id.Token)
	in.InsecureTLS = in.InsecureTLS || id.InsecureTLS
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
