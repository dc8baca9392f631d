package consts

type InstallationStatus string

const (
	InstallationPending    InstallationStatus = "PENDING"
	InstallationInProgress InstallationStatus = "IN_PROGRESS"
	InstallationCompleted  InstallationStatus = "COMPLETED"
	InstallationFailed     InstallationStatus = "FAILED"
)

type StepType string

const (
	StepPreInstallation StepType = "PRE_INSTALLATION"
	StepCPanelEntry     StepType = "CPANEL_ENTRY"
	StepCloudflareEntry StepType = "CLOUDFLARE_ENTRY"
	StepDirectorySetup  StepType = "DIRECTORY_SETUP"
	StepDBCreation      StepType = "DB_CREATION"
)

// ProvisioningSteps is the fixed execution order. PRE_INSTALLATION is metadata and is
// not part of it.
var ProvisioningSteps = []StepType{
	StepCPanelEntry,
	StepCloudflareEntry,
	StepDirectorySetup,
	StepDBCreation,
}

// TotalProvisioningSteps is the denominator for progress reporting.
const TotalProvisioningSteps = 4

func (t StepType) Valid() bool {
	switch t {
	case StepPreInstallation, StepCPanelEntry, StepCloudflareEntry, StepDirectorySetup, StepDBCreation:
		return true
	}
	return false
}

func (t StepType) IsProvisioning() bool {
	return t.Valid() && t != StepPreInstallation
}

// Order returns the position of t in the ledger, PRE_INSTALLATION first.
func (t StepType) Order() int {
	switch t {
	case StepPreInstallation:
		return 0
	case StepCPanelEntry:
		return 1
	case StepCloudflareEntry:
		return 2
	case StepDirectorySetup:
		return 3
	case StepDBCreation:
		return 4
	}
	return 99
}

type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepSuccess    StepStatus = "SUCCESS"
	StepFailed     StepStatus = "FAILED"
)

func (s StepStatus) Terminal() bool {
	return s == StepSuccess || s == StepFailed
}

type DNSProvider string

const (
	DNSCloudflare DNSProvider = "cloudflare"
	DNSRoute53    DNSProvider = "route53"
)
